package cli

import "context"

// Run is the high-level entrypoint used by main and by black-box tests. args
// excludes argv[0]; workDir anchors every relative path.
func Run(ctx context.Context, args []string, workDir string, opts Options) (Result, error) {
	inv, err := ParseInvocation(args, workDir)
	if err != nil {
		return Result{ExitCode: ExitCode(err)}, err
	}
	return Execute(ctx, inv, opts)
}

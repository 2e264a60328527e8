package supervisor

// buildArgs constructs the CLI child's argv per spec §6's child contract:
// model flag, line-delimited JSON output, quiet/no-color, and an optional
// resume flag carrying the parent checkpoint id. Agent-specific extra args
// (config.AgentConfig.ExtraArgs) are appended last so they can override
// defaults the CLI itself tolerates as repeated flags.
func buildArgs(model, resumeCheckpoint string, extra []string) []string {
	args := []string{
		"--model", model,
		"--output-format", "stream-json",
		"--no-color",
		"--quiet",
	}
	if resumeCheckpoint != "" {
		args = append(args, "--resume", resumeCheckpoint)
	}
	return append(args, extra...)
}

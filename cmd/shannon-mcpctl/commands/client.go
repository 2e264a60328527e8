package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// daemonSession is a live connection to a spawned shannon-mcpd, mirroring
// the calculator package's own integration test client: a daemon
// subprocess with its stdin/stdout wired into an sdkmcp.IOTransport.
type daemonSession struct {
	cmd     *exec.Cmd
	session *sdkmcp.ClientSession
}

func connectDaemon(ctx context.Context) (*daemonSession, error) {
	args := []string{}
	if workDir != "" {
		args = append(args, "--directory", workDir)
	}
	cmd := exec.CommandContext(ctx, daemonPath, args...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open daemon stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open daemon stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", daemonPath, err)
	}

	client := sdkmcp.NewClient(&sdkmcp.Implementation{
		Name:    "shannon-mcpctl",
		Version: version,
	}, nil)
	transport := &sdkmcp.IOTransport{Reader: stdout, Writer: stdin}

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}
	return &daemonSession{cmd: cmd, session: session}, nil
}

func (d *daemonSession) Close() {
	d.session.Close()
	_ = d.cmd.Wait()
}

// callTool connects to a fresh daemon instance, invokes one tool, prints
// its result as JSON, and reports wire-level errors as returned by the
// handler's error envelope (spec §7).
func callTool(ctx context.Context, name string, args map[string]any) error {
	d, err := connectDaemon(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	result, err := d.session.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return fmt.Errorf("call %s: %w", name, err)
	}
	if len(result.Content) == 0 {
		return fmt.Errorf("%s: empty response", name)
	}
	text, ok := result.Content[0].(*sdkmcp.TextContent)
	if !ok {
		return fmt.Errorf("%s: unexpected content type %T", name, result.Content[0])
	}
	if result.IsError {
		fmt.Fprintln(os.Stderr, text.Text)
		return fmt.Errorf("%s failed", name)
	}

	var pretty any
	if err := json.Unmarshal([]byte(text.Text), &pretty); err != nil {
		fmt.Println(text.Text)
		return nil
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		fmt.Println(text.Text)
		return nil
	}
	fmt.Println(string(out))
	return nil
}

package extcmd

import (
	"context"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/lidar-tools/lidarchive/internal/logging"
	"github.com/lidar-tools/lidarchive/internal/processing"
)

// Environment variables carrying the remote credentials to the client.
const (
	EnvUser            = "LIDARCHIVE_REMOTE_USER"
	EnvPassword        = "LIDARCHIVE_REMOTE_PASSWORD"
	EnvWebsiteUser     = "LIDARCHIVE_WEBSITE_USER"
	EnvWebsitePassword = "LIDARCHIVE_WEBSITE_PASSWORD"
)

// RemoteOptions configures a RemoteClient.
type RemoteOptions struct {
	Command   string
	Args      []string
	BaseURL   string
	OutputDir string

	User            string
	Password        string
	WebsiteUser     string
	WebsitePassword string

	Runner Runner
	Logger logrus.FieldLogger
}

// RemoteClient runs
//
//	<command> [args] [--base-url U] [--output-dir D] upload|get|monitor|rerun ...
//
// Status answers are JSON objects on stdout, null for a missing measurement.
// Credentials travel in the environment.
type RemoteClient struct {
	command string
	args    []string
	env     []string
	runner  Runner
	log     logrus.FieldLogger
}

func NewRemoteClient(opts RemoteOptions) *RemoteClient {
	runner := opts.Runner
	if runner == nil {
		runner = ExecRunner{}
	}

	args := append([]string(nil), opts.Args...)
	if opts.BaseURL != "" {
		args = append(args, "--base-url", opts.BaseURL)
	}
	if opts.OutputDir != "" {
		args = append(args, "--output-dir", opts.OutputDir)
	}

	var env []string
	for _, kv := range [][2]string{
		{EnvUser, opts.User},
		{EnvPassword, opts.Password},
		{EnvWebsiteUser, opts.WebsiteUser},
		{EnvWebsitePassword, opts.WebsitePassword},
	} {
		if kv[1] != "" {
			env = append(env, kv[0]+"="+kv[1])
		}
	}

	return &RemoteClient{
		command: opts.Command,
		args:    args,
		env:     env,
		runner:  runner,
		log:     logging.OrDiscard(opts.Logger).WithField("component", "remote"),
	}
}

func (c *RemoteClient) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := Command{
		Name: c.command,
		Args: append(append([]string(nil), c.args...), args...),
		Env:  c.env,
	}
	c.log.Debugf("Running %s", cmd)
	return c.runner.Run(ctx, cmd)
}

// UploadMeasurement makes one upload attempt.
func (c *RemoteClient) UploadMeasurement(ctx context.Context, path string, systemID int, replace bool) error {
	args := []string{"upload", "--file", path, "--system-id", strconv.Itoa(systemID)}
	if replace {
		args = append(args, "--replace")
	}
	_, err := c.run(ctx, args...)
	return err
}

func (c *RemoteClient) GetMeasurement(ctx context.Context, id string) (*processing.RemoteStatus, error) {
	return c.status(ctx, "get", "--id", id)
}

// MonitorProcessing blocks until the remote finishes processing id.
func (c *RemoteClient) MonitorProcessing(ctx context.Context, id string, exitIfMissing bool) (*processing.RemoteStatus, error) {
	args := []string{"monitor", "--id", id}
	if exitIfMissing {
		args = append(args, "--exit-if-missing")
	}
	return c.status(ctx, args...)
}

func (c *RemoteClient) RerunAll(ctx context.Context, id string, monitor bool) error {
	args := []string{"rerun", "--id", id}
	if monitor {
		args = append(args, "--monitor")
	}
	_, err := c.run(ctx, args...)
	return err
}

func (c *RemoteClient) status(ctx context.Context, args ...string) (*processing.RemoteStatus, error) {
	out, err := c.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	var status processing.RemoteStatus
	ok, err := decodeJSON(out, &status)
	if err != nil || !ok {
		return nil, err
	}
	return &status, nil
}

var _ processing.RemoteClient = (*RemoteClient)(nil)

package peers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"fancontrol/internal/logger"
	"fancontrol/internal/sensor"
)

// DefaultSSHPort is used for peers given without a port.
const DefaultSSHPort = 22

// remoteProbe is one command run on a peer and how to read its output.
type remoteProbe struct {
	cmd   string
	parse func(string) (float64, error)
}

// remoteProbes are tried in order; the first that yields a value wins.
var remoteProbes = []remoteProbe{
	{cmd: sensor.DefaultVcgencmdPath + " measure_temp", parse: sensor.ParseVcgencmd},
	{cmd: "cat " + sensor.DefaultThermalPath, parse: sensor.ParseMillidegrees},
}

var errNoHostKeyCallback = errors.New("no host key verification configured")

// SSHConfig tunes an SSHPoller. Peers are "host", "host:port", "user@host"
// or "user@host:port"; User and Port fill in what the address leaves out.
type SSHConfig struct {
	Timeout         time.Duration
	MaxWorkers      int
	User            string
	Port            int
	Auth            []ssh.AuthMethod
	HostKeyCallback ssh.HostKeyCallback
}

// SSHPoller reads peer temperatures by running the local probe commands on
// each peer over SSH.
type SSHPoller struct {
	cfg  SSHConfig
	log  *logger.Logger
	dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

func NewSSHPoller(cfg SSHConfig, log *logger.Logger) *SSHPoller {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultMaxWorkers
	}
	if cfg.MaxWorkers > MaxWorkersLimit {
		cfg.MaxWorkers = MaxWorkersLimit
	}
	if cfg.Port <= 0 {
		cfg.Port = DefaultSSHPort
	}
	if cfg.User == "" {
		if u, err := user.Current(); err == nil {
			cfg.User = u.Username
		}
	}
	if cfg.HostKeyCallback == nil {
		cfg.HostKeyCallback = func(string, net.Addr, ssh.PublicKey) error { return errNoHostKeyCallback }
	}
	var d net.Dialer
	return &SSHPoller{cfg: cfg, log: log, dial: d.DialContext}
}

// Timeout returns the per-peer timeout.
func (p *SSHPoller) Timeout() time.Duration { return p.cfg.Timeout }

// Poll queries every peer in list over SSH with the same isolation rules as
// the HTTP Poller.
func (p *SSHPoller) Poll(ctx context.Context, list List) map[string]Result {
	return pollAll(ctx, list, p.cfg.MaxWorkers, p.log, p.pollOne)
}

func (p *SSHPoller) pollOne(ctx context.Context, addr string) Result {
	login, hostport := SSHTarget(addr, p.cfg.User, p.cfg.Port)
	fail := func(err error) Result {
		return Result{Err: &PollError{Peer: addr, URL: "ssh://" + login + "@" + hostport, Err: err}}
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	client, err := p.connect(ctx, login, hostport)
	if err != nil {
		return fail(err)
	}
	defer client.Close()
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	v, err := readRemote(client)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return fail(err)
	}
	return Result{Value: v}
}

func (p *SSHPoller) connect(ctx context.Context, login, hostport string) (*ssh.Client, error) {
	conn, err := p.dial(ctx, "tcp", hostport)
	if err != nil {
		return nil, err
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, hostport, &ssh.ClientConfig{
		User:            login,
		Auth:            p.cfg.Auth,
		HostKeyCallback: p.cfg.HostKeyCallback,
		Timeout:         p.cfg.Timeout,
	})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return ssh.NewClient(c, chans, reqs), nil
}

func readRemote(client *ssh.Client) (float64, error) {
	var errs []error
	for _, probe := range remoteProbes {
		out, err := runRemote(client, probe.cmd)
		if err == nil {
			var v float64
			if v, err = probe.parse(string(out)); err == nil {
				return finite(v)
			}
		}
		errs = append(errs, fmt.Errorf("%s: %w", probe.cmd, err))
	}
	return 0, errors.Join(errs...)
}

func runRemote(client *ssh.Client, cmd string) ([]byte, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, err
	}
	defer session.Close()
	out, err := session.Output(cmd)
	if err != nil {
		return nil, err
	}
	if len(out) > maxBodyBytes {
		out = out[:maxBodyBytes]
	}
	return out, nil
}

// SSHTarget splits a peer address into login user and host:port.
func SSHTarget(addr, defaultUser string, defaultPort int) (string, string) {
	addr = strings.TrimPrefix(strings.TrimSpace(addr), "ssh://")
	login := defaultUser
	if i := strings.LastIndex(addr, "@"); i >= 0 {
		login, addr = addr[:i], addr[i+1:]
	}
	if defaultPort <= 0 {
		defaultPort = DefaultSSHPort
	}
	if h, port, err := net.SplitHostPort(addr); err == nil {
		return login, net.JoinHostPort(h, port)
	}
	return login, net.JoinHostPort(strings.Trim(addr, "[]"), strconv.Itoa(defaultPort))
}

// SSHAuthMethods loads private keys and, when SSH_AUTH_SOCK is set, the
// running agent. With no keyFiles the usual ~/.ssh identities are tried and
// missing or unreadable ones are skipped.
func SSHAuthMethods(keyFiles []string) ([]ssh.AuthMethod, error) {
	explicit := len(keyFiles) > 0
	if !explicit {
		keyFiles = defaultIdentities()
	}

	var signers []ssh.Signer
	for _, path := range keyFiles {
		b, err := os.ReadFile(path)
		if err == nil {
			var s ssh.Signer
			if s, err = ssh.ParsePrivateKey(b); err == nil {
				signers = append(signers, s)
				continue
			}
		}
		if explicit {
			return nil, fmt.Errorf("ssh key %s: %w", path, err)
		}
	}

	var methods []ssh.AuthMethod
	if len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}
	return methods, nil
}

// SSHHostKeyCallback verifies peers against a known_hosts file (default
// ~/.ssh/known_hosts), or accepts any key when insecure is set.
func SSHHostKeyCallback(knownHostsFile string, insecure bool) (ssh.HostKeyCallback, error) {
	if insecure {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	if knownHostsFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locate known_hosts: %w", err)
		}
		knownHostsFile = filepath.Join(home, ".ssh", "known_hosts")
	}
	cb, err := knownhosts.New(knownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts: %w", err)
	}
	return cb, nil
}

func defaultIdentities() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	dir := filepath.Join(home, ".ssh")
	return []string{
		filepath.Join(dir, "id_ed25519"),
		filepath.Join(dir, "id_ecdsa"),
		filepath.Join(dir, "id_rsa"),
	}
}

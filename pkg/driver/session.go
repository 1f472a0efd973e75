package driver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/driftwatch-net/driftwatch/pkg/schema"
	"github.com/driftwatch-net/driftwatch/pkg/util"
)

// sshSession wraps the SSH client shared by the vendor drivers. Each
// command runs in its own ssh.Session (stateless per-call, like the
// RouterOS and SONiC CLIs expect).
type sshSession struct {
	cred    schema.Credential
	timeout time.Duration
	client  *ssh.Client
}

func newSSHSession(cred schema.Credential, opts Options) *sshSession {
	timeout := time.Duration(opts.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &sshSession{cred: cred, timeout: timeout}
}

func (s *sshSession) open(ctx context.Context) error {
	if s.client != nil {
		return nil
	}

	config := &ssh.ClientConfig{
		User: s.cred.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(s.cred.Password),
			// some RouterOS builds only offer keyboard-interactive;
			// every challenge prompt gets the password
			ssh.KeyboardInteractive(challengeAnswerer(s.cred.Password)),
		},
		// Fleet devices are reached over management networks; host key
		// pinning is tracked per deployment, not here.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         s.timeout,
	}

	addr := fmt.Sprintf("%s:%d", s.cred.Host, s.cred.Port)

	type dialResult struct {
		client *ssh.Client
		err    error
	}
	done := make(chan dialResult, 1)
	go func() {
		client, err := ssh.Dial("tcp", addr, config)
		done <- dialResult{client, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-done; r.client != nil {
				r.client.Close()
			}
		}()
		return util.NewDriverError(s.cred.Host, "open", util.ErrTimeout, ctx.Err().Error())
	case r := <-done:
		if r.err != nil {
			return s.classifyDialError(r.err)
		}
		s.client = r.client
		util.WithDevice(s.cred.Host).Info("SSH session established")
		return nil
	}
}

// challengeAnswerer answers every keyboard-interactive prompt with the
// account password.
func challengeAnswerer(password string) ssh.KeyboardInteractiveChallenge {
	return func(name, instruction string, questions []string, echos []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i := range answers {
			answers[i] = password
		}
		return answers, nil
	}
}

func (s *sshSession) classifyDialError(err error) error {
	msg := util.ScrubError(err, s.cred.Password)
	kind := util.ErrConnectionFailed
	switch {
	case strings.Contains(msg, "unable to authenticate"),
		strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "handshake failed"):
		kind = util.ErrAuthFailed
		// auth failures log host and username only, never the secret
		util.WithFields(map[string]interface{}{
			"host":     s.cred.Host,
			"username": s.cred.Username,
		}).Error("SSH authentication failed")
	case strings.Contains(msg, "i/o timeout"),
		strings.Contains(msg, "timed out"):
		kind = util.ErrTimeout
	}
	return util.NewDriverError(s.cred.Host, "open", kind, msg)
}

func (s *sshSession) close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	if err != nil {
		util.WithDevice(s.cred.Host).Warnf("error closing SSH session: %s",
			util.ScrubError(err, s.cred.Password))
	}
	return nil
}

func (s *sshSession) connected() bool {
	return s.client != nil
}

// run executes one command in a fresh session, bounded by the
// per-operation timeout and the caller's context.
func (s *sshSession) run(ctx context.Context, cmd string) (string, error) {
	if s.client == nil {
		return "", util.NewDriverError(s.cred.Host, cmd, util.ErrNotConnected, "session not open")
	}

	session, err := s.client.NewSession()
	if err != nil {
		return "", util.NewDriverError(s.cred.Host, cmd, util.ErrConnectionFailed,
			util.ScrubError(err, s.cred.Password))
	}
	defer session.Close()

	type execResult struct {
		output []byte
		err    error
	}
	done := make(chan execResult, 1)
	go func() {
		output, err := session.CombinedOutput(cmd)
		done <- execResult{output, err}
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		session.Close()
		return "", util.NewDriverError(s.cred.Host, cmd, util.ErrTimeout, ctx.Err().Error())
	case <-timer.C:
		session.Close()
		return "", util.NewDriverError(s.cred.Host, cmd, util.ErrTimeout,
			fmt.Sprintf("command exceeded %s", s.timeout))
	case r := <-done:
		if r.err != nil {
			return string(r.output), util.NewDriverError(s.cred.Host, cmd, util.ErrConnectionFailed,
				util.ScrubError(r.err, s.cred.Password))
		}
		return string(r.output), nil
	}
}

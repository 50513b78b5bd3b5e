package config

import (
	"fmt"
	"time"
)

// Document is the decoded shape of YAML and TOML manifests. Durations are
// Go duration strings.
type Document struct {
	Storage   *Storage      `yaml:"storage" toml:"storage"`
	Executor  *ExecutorDoc  `yaml:"executor" toml:"executor"`
	Remotes   []RemoteDoc   `yaml:"remotes" toml:"remote"`
	Federated *FederatedDoc `yaml:"federated" toml:"federated"`
	DevServer *DevServerDoc `yaml:"dev_server" toml:"dev_server"`
}

// ExecutorDoc is the executor section of a Document.
type ExecutorDoc struct {
	Root          string `yaml:"root" toml:"root"`
	AssetsDir     string `yaml:"assets_dir" toml:"assets_dir"`
	PublicKeyFile string `yaml:"public_key_file" toml:"public_key_file"`
}

// RemoteDoc is one remote entry of a Document.
type RemoteDoc struct {
	Name         string            `yaml:"name" toml:"name"`
	Caller       string            `yaml:"caller" toml:"caller"`
	Priority     int               `yaml:"priority" toml:"priority"`
	URL          string            `yaml:"url" toml:"url"`
	Method       string            `yaml:"method" toml:"method"`
	Query        string            `yaml:"query" toml:"query"`
	Headers      map[string]string `yaml:"headers" toml:"headers"`
	Body         *string           `yaml:"body" toml:"body"`
	Timeout      string            `yaml:"timeout" toml:"timeout"`
	Retry        int               `yaml:"retry" toml:"retry"`
	RetryDelay   string            `yaml:"retry_delay" toml:"retry_delay"`
	Cache        *bool             `yaml:"cache" toml:"cache"`
	Absolute     bool              `yaml:"absolute" toml:"absolute"`
	Verify       string            `yaml:"verify_signature" toml:"verify_signature"`
	ShouldUpdate *PolicyDoc        `yaml:"should_update" toml:"should_update"`
}

// PolicyDoc is an update policy of a RemoteDoc.
type PolicyDoc struct {
	Engine     string `yaml:"engine" toml:"engine"`
	Expression string `yaml:"expression" toml:"expression"`
}

// FederatedDoc is the federated section of a Document.
type FederatedDoc struct {
	Priority   int               `yaml:"priority" toml:"priority"`
	Containers map[string]string `yaml:"containers" toml:"containers"`
	Chunks     map[string]string `yaml:"chunks" toml:"chunks"`
	ChunkExt   string            `yaml:"chunk_ext" toml:"chunk_ext"`
	Headers    map[string]string `yaml:"headers" toml:"headers"`
}

// DevServerDoc is the dev_server section of a Document.
type DevServerDoc struct {
	URL       string `yaml:"url" toml:"url"`
	Namespace string `yaml:"namespace" toml:"namespace"`
}

// Model translates d into the agnostic model.
func (d *Document) Model() (*Model, error) {
	m := &Model{Storage: d.Storage}
	if d.Executor != nil {
		m.Executor = &Executor{Root: d.Executor.Root, AssetsDir: d.Executor.AssetsDir, PublicKeyFile: d.Executor.PublicKeyFile}
	}
	if d.Federated != nil {
		m.Federated = &Federated{
			Priority:   d.Federated.Priority,
			Containers: d.Federated.Containers,
			Chunks:     d.Federated.Chunks,
			ChunkExt:   d.Federated.ChunkExt,
			Headers:    d.Federated.Headers,
		}
	}
	if d.DevServer != nil {
		m.DevServer = &DevServer{URL: d.DevServer.URL, Namespace: d.DevServer.Namespace}
	}

	for _, r := range d.Remotes {
		remote, err := r.remote()
		if err != nil {
			return nil, err
		}
		m.Remotes = append(m.Remotes, remote)
	}
	return m, nil
}

func (r RemoteDoc) remote() (*Remote, error) {
	if r.Name == "" {
		return nil, fmt.Errorf("remote with url %q has no name", r.URL)
	}
	timeout, err := ParseDuration(r.Timeout)
	if err != nil {
		return nil, fmt.Errorf("remote %q: timeout: %w", r.Name, err)
	}
	delay, err := ParseDuration(r.RetryDelay)
	if err != nil {
		return nil, fmt.Errorf("remote %q: retry_delay: %w", r.Name, err)
	}
	out := &Remote{
		Name:       r.Name,
		Caller:     r.Caller,
		Priority:   r.Priority,
		URL:        r.URL,
		Method:     r.Method,
		Query:      r.Query,
		Headers:    r.Headers,
		Body:       r.Body,
		Timeout:    timeout,
		Retry:      r.Retry,
		RetryDelay: delay,
		Cache:      r.Cache,
		Absolute:   r.Absolute,
		Verify:     r.Verify,
	}
	if r.ShouldUpdate != nil {
		out.Policy = &Policy{Engine: r.ShouldUpdate.Engine, Expression: r.ShouldUpdate.Expression}
	}
	return out, nil
}

// ParseDuration parses a Go duration string. An empty string is zero.
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

package config

import (
	"cmp"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/goccy/go-yaml"
)

// Internal configuration data structures for gitmirror. A single immutable
// Root is constructed at startup and passed explicitly to every component.

// Root is the top-level configuration structure used by gitmirror.
type Root struct {
	Identity   Identity   `json:"identity"`
	Repository Repository `json:"repository"`
	Mirror     Mirror     `json:"mirror"`
	Logs       Logs       `json:"logs,omitzero"`
	Schedule   Schedule   `json:"schedule,omitzero"`
	SSH        SSH        `json:"ssh,omitzero"`
}

// Identity describes the dedicated service account owning the mirror setup.
type Identity struct {
	Name string `json:"name"`
	Home string `json:"home,omitempty"` // defaults to /home/<name>
}

func (i *Identity) Equal(other *Identity) bool {
	return i.Name == other.Name && i.Home == other.Home
}

// Repository describes the working tree / bare mirror pair and the external
// origin it pushes to.
type Repository struct {
	// URL is the external origin as supplied by the operator. HTTPS forms
	// referencing Host are rewritten to the SSH connection form at init time.
	URL string `json:"url"`
	// Host is the external hosting service used for HTTPS-to-SSH rewriting.
	Host string `json:"host,omitempty"` // defaults to github.com
	// Name is the repository name; derived from URL when empty.
	Name string `json:"name,omitempty"`
	// WorkDir is the working tree location. Defaults to <home>/<name>.
	WorkDir string `json:"work_dir,omitempty"`
	// BareDir is the bare mirror location. Defaults to <home>/gitrepo/<name>.git.
	BareDir string `json:"bare_dir,omitempty"`
}

func (r *Repository) Equal(other *Repository) bool {
	return r.URL == other.URL &&
		r.Host == other.Host &&
		r.Name == other.Name &&
		r.WorkDir == other.WorkDir &&
		r.BareDir == other.BareDir
}

// Mirror describes the snapshot copy performed by the sync job.
type Mirror struct {
	// Source is the tree being mirrored into the working repository.
	Source string `json:"source"`
	// Target is the destination; defaults to the repository work_dir.
	Target string `json:"target,omitempty"`
	// Exclude holds glob patterns for paths that must never be copied
	// (version control metadata, secrets, caches, ...). Deployment data,
	// not a built-in contract.
	Exclude StringSet `json:"exclude,omitempty"`
	// Include holds glob patterns that override Exclude.
	Include StringSet `json:"include,omitempty"`
}

func (m *Mirror) Equal(other *Mirror) bool {
	return m.Source == other.Source &&
		m.Target == other.Target &&
		m.Exclude.Equal(other.Exclude) &&
		m.Include.Equal(other.Include)
}

func (m *Mirror) validate() error {
	for _, pattern := range append(slices.Clone(m.Exclude), m.Include...) {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			return fmt.Errorf("failed to compile mirror pattern %q: %w", pattern, err)
		}
	}
	return nil
}

// Logs describes where job logs live and how many rotated archives to keep.
type Logs struct {
	Dir       string `json:"dir,omitempty"`       // defaults to <home>/logs
	Retention int    `json:"retention,omitempty"` // defaults to 25 archives per job
}

// Schedule describes the recurring execution of the sync and push jobs.
type Schedule struct {
	// Interval drives the built-in runner ('gitmirror run').
	Interval Duration `json:"interval,omitzero"` // defaults to 1h
	// Cron is the crontab time spec used by 'gitmirror install'.
	Cron string `json:"cron,omitempty"` // defaults to "0 * * * *"
}

// SSH describes the key material identifying this installation.
type SSH struct {
	Dir string `json:"dir,omitempty"` // defaults to <home>/.ssh
	// Label names the installation in generated key file names.
	Label string `json:"label,omitempty"` // defaults to "deploy"
	// KnownHosts holds known_hosts lines for the external host, registered
	// verbatim during provisioning.
	KnownHosts StringSet `json:"known_hosts,omitempty"`
}

// Duration marshals as a string like "5m" or "1h" instead of int64.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	val, err := time.ParseDuration(str)
	*d = Duration(val)
	return err
}

func (d *Duration) UnmarshalYAML(bs []byte) error {
	var s string
	if err := yaml.Unmarshal(bs, &s); err != nil {
		return err
	}
	val, err := time.ParseDuration(s)
	*d = Duration(val)
	return err
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

type StringSet []string

func (s StringSet) Equal(other StringSet) bool {
	if len(s) != len(other) {
		return false
	}
	if len(s) > 1 {
		s = slices.Clone(s)
		other = slices.Clone(other)
		slices.Sort(s)
		slices.Sort(other)
	}
	return slices.Equal(s, other)
}

// Parse decodes, defaults and validates a configuration document. The raw
// document is checked against the embedded JSON schema first.
func Parse(bs []byte) (*Root, error) {
	if err := Validate(bs); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var root Root
	if err := yaml.Unmarshal(bs, &root); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := root.applyDefaults(); err != nil {
		return nil, err
	}
	return &root, root.validate()
}

// ParseFile is Parse on the contents of path.
func ParseFile(path string) (*Root, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(bs)
}

func (r *Root) applyDefaults() error {
	if r.Identity.Name == "" {
		return fmt.Errorf("identity.name is required")
	}
	r.Identity.Home = cmp.Or(r.Identity.Home, filepath.Join("/home", r.Identity.Name))

	if r.Repository.URL == "" {
		return fmt.Errorf("repository.url is required")
	}
	r.Repository.Host = cmp.Or(r.Repository.Host, "github.com")
	if r.Repository.Name == "" {
		base := strings.TrimSuffix(filepath.Base(r.Repository.URL), ".git")
		if base == "" || base == "." || base == "/" {
			return fmt.Errorf("cannot derive repository name from url %q", r.Repository.URL)
		}
		r.Repository.Name = base
	}
	r.Repository.WorkDir = cmp.Or(r.Repository.WorkDir, filepath.Join(r.Identity.Home, r.Repository.Name))
	r.Repository.BareDir = cmp.Or(r.Repository.BareDir, filepath.Join(r.Identity.Home, "gitrepo", r.Repository.Name+".git"))

	r.Mirror.Target = cmp.Or(r.Mirror.Target, r.Repository.WorkDir)

	r.Logs.Dir = cmp.Or(r.Logs.Dir, filepath.Join(r.Identity.Home, "logs"))
	if r.Logs.Retention == 0 {
		r.Logs.Retention = 25
	}

	if r.Schedule.Interval == 0 {
		r.Schedule.Interval = Duration(time.Hour)
	}
	r.Schedule.Cron = cmp.Or(r.Schedule.Cron, "0 * * * *")

	r.SSH.Dir = cmp.Or(r.SSH.Dir, filepath.Join(r.Identity.Home, ".ssh"))
	r.SSH.Label = cmp.Or(r.SSH.Label, "deploy")

	return nil
}

func (r *Root) validate() error {
	if r.Logs.Retention < 1 {
		return fmt.Errorf("logs.retention must be positive, got %d", r.Logs.Retention)
	}
	if r.Mirror.Source == "" {
		return fmt.Errorf("mirror.source is required")
	}
	return r.Mirror.validate()
}

// Skeleton returns the fixed directory skeleton created under the service
// identity's home: install staging, recurring job scripts, the reserved tools
// directory, the bare repository parent, logs and the SSH directory.
func (r *Root) Skeleton() []string {
	return []string{
		filepath.Join(r.Identity.Home, "install"),
		filepath.Join(r.Identity.Home, "services", "backup"),
		filepath.Join(r.Identity.Home, "wifi_tools"),
		filepath.Join(r.Identity.Home, "gitrepo"),
		r.Logs.Dir,
		r.SSH.Dir,
	}
}

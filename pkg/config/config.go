// Package config loads database profiles from a yaml or toml file and turns them into db.Options,
// resolving passwords from literal values, secrets providers or password files.
package config

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-pkgz/fileutils"
	"github.com/hashicorp/go-multierror"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/umputun/rowload/pkg/db"
	"github.com/umputun/rowload/pkg/secrets"
)

// Config is the top-level config object
type Config struct {
	Default   string             `yaml:"default" toml:"default"`     // default profile name
	Secrets   SecretsConf        `yaml:"secrets" toml:"secrets"`     // secrets provider used by password_secret
	Databases map[string]Profile `yaml:"databases" toml:"databases"` // named database profiles
}

// Profile defines a single database connection
type Profile struct {
	Name           string   `yaml:"-" toml:"-"` // set from the map key
	Driver         string   `yaml:"driver" toml:"driver"`
	Server         string   `yaml:"server" toml:"server"`
	Database       string   `yaml:"database" toml:"database"`
	Schema         string   `yaml:"schema" toml:"schema"`
	User           string   `yaml:"user" toml:"user"`
	Password       string   `yaml:"password" toml:"password"`               // literal password, not recommended
	PasswordFile   string   `yaml:"password_file" toml:"password_file"`     // plain or sealed password file
	PasswordSecret string   `yaml:"password_secret" toml:"password_secret"` // key in the secrets provider
	URL            string   `yaml:"url" toml:"url"`                         // full dsn
	MaxInClause    int      `yaml:"max_in_clause" toml:"max_in_clause"`
	Debug          bool     `yaml:"debug" toml:"debug"`
	Scrollable     bool     `yaml:"scrollable" toml:"scrollable"`
	AutoCommit     *bool    `yaml:"autocommit" toml:"autocommit"` // true if not set
	Lazy           bool     `yaml:"lazy" toml:"lazy"`
	StampColumns   []string `yaml:"stamp_columns" toml:"stamp_columns"` // audit columns appended by writers
}

// SecretsConf defines secrets provider settings
type SecretsConf struct {
	Provider   string `yaml:"provider" toml:"provider"`         // none, vault, aws, ansible or table
	SealKeyEnv string `yaml:"seal_key_env" toml:"seal_key_env"` // env with the key for sealed passwords and secrets

	Vault struct {
		URL   string `yaml:"url" toml:"url"`
		Path  string `yaml:"path" toml:"path"`
		Token string `yaml:"token" toml:"token"`
	} `yaml:"vault" toml:"vault"`

	AWS struct {
		Region    string `yaml:"region" toml:"region"`
		AccessKey string `yaml:"access_key" toml:"access_key"`
		SecretKey string `yaml:"secret_key" toml:"secret_key"`
	} `yaml:"aws" toml:"aws"`

	Ansible struct {
		File   string `yaml:"file" toml:"file"`
		Secret string `yaml:"secret" toml:"secret"`
	} `yaml:"ansible" toml:"ansible"`

	Table struct {
		Profile string `yaml:"profile" toml:"profile"` // profile of the database with rowload_secrets table
	} `yaml:"table" toml:"table"`
}

// DefaultSealKeyEnv is the env variable with the seal key if secrets.seal_key_env is not set
const DefaultSealKeyEnv = "ROWLOAD_SEAL_KEY"

// Load reads config file, yaml or toml by extension, and validates all profiles.
func Load(fname string) (*Config, error) {
	log.Printf("[DEBUG] load config %q", fname)
	data, err := os.ReadFile(fname) //nolint:gosec // config file name from cli
	if err != nil {
		return nil, fmt.Errorf("can't read config %s: %w", fname, err)
	}

	res := &Config{}
	switch {
	case strings.HasSuffix(fname, ".yml") || strings.HasSuffix(fname, ".yaml") || !strings.Contains(filepath.Base(fname), "."):
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true) // strict mode, fail on unknown fields
		if err = dec.Decode(res); err != nil {
			return nil, fmt.Errorf("can't unmarshal yaml config %s: %w", fname, err)
		}
	case strings.HasSuffix(fname, ".toml"):
		if err = toml.Unmarshal(data, res); err != nil {
			return nil, fmt.Errorf("can't unmarshal toml config %s: %w", fname, err)
		}
	default:
		return nil, fmt.Errorf("unknown config format %s", fname)
	}

	for k, v := range res.Databases {
		v.Name = k
		res.Databases[k] = v
	}
	if err = res.validate(); err != nil {
		return nil, fmt.Errorf("config %s is invalid: %w", fname, err)
	}
	log.Printf("[INFO] config loaded with %d databases", len(res.Databases))
	return res, nil
}

// Names returns sorted profile names
func (c *Config) Names() []string {
	res := make([]string, 0, len(c.Databases))
	for k := range c.Databases {
		res = append(res, k)
	}
	sort.Strings(res)
	return res
}

// Profile returns a copy of the named profile, or of the default one if name is empty
func (c *Config) Profile(name string) (Profile, error) {
	if name == "" {
		name = c.Default
	}
	if name == "" && len(c.Databases) == 1 {
		name = c.Names()[0]
	}
	p, ok := c.Databases[name]
	if !ok {
		return Profile{}, &db.Error{Kind: db.KindConfig, Op: "get profile", Name: name, Err: fmt.Errorf("not found")}
	}
	p.StampColumns = append([]string(nil), p.StampColumns...)
	if p.AutoCommit != nil {
		ac := *p.AutoCommit
		p.AutoCommit = &ac
	}
	return p, nil
}

// SealKey returns the key for sealed values from the configured env variable, nil if not set
func (c *Config) SealKey() []byte {
	env := c.Secrets.SealKeyEnv
	if env == "" {
		env = DefaultSealKeyEnv
	}
	if v := os.Getenv(env); v != "" {
		return []byte(v)
	}
	return nil
}

// SecretsProvider makes provider defined in the secrets section
func (c *Config) SecretsProvider(ctx context.Context) (secrets.Provider, error) {
	sc := c.Secrets
	switch strings.ToLower(sc.Provider) {
	case "", "none":
		return &secrets.NoOpProvider{}, nil
	case "vault":
		return secrets.NewHashiVaultProvider(sc.Vault.URL, sc.Vault.Path, sc.Vault.Token)
	case "aws":
		return secrets.NewAWSSecretsProvider(sc.AWS.AccessKey, sc.AWS.SecretKey, sc.AWS.Region)
	case "ansible":
		return secrets.NewAnsibleVaultProvider(ExpandPath(sc.Ansible.File), sc.Ansible.Secret)
	case "table":
		p, err := c.Profile(sc.Table.Profile)
		if err != nil {
			return nil, fmt.Errorf("can't get secrets table profile: %w", err)
		}
		if p.PasswordSecret != "" {
			return nil, fmt.Errorf("secrets table profile %q can't use password_secret", p.Name)
		}
		opts, err := p.Options(&secrets.NoOpProvider{}, c.SealKey())
		if err != nil {
			return nil, err
		}
		opts.AutoCommit = true
		m, err := db.New(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("can't connect to secrets table database: %w", err)
		}
		return secrets.NewTableProvider(ctx, m, c.SealKey())
	}
	return nil, &db.Error{Kind: db.KindConfig, Op: "make secrets provider", Name: sc.Provider, Err: fmt.Errorf("unknown provider")}
}

// Options converts profile to db.Options. Password is taken from the literal value, then from the secrets
// provider if password_secret set. Otherwise password_file is passed on, so the manager re-reads it on reconnect.
func (p Profile) Options(sp secrets.Provider, sealKey []byte) (db.Options, error) {
	res := db.Options{
		Driver:      p.Driver,
		Server:      p.Server,
		Database:    p.Database,
		Schema:      p.Schema,
		User:        p.User,
		Password:    p.Password,
		URL:         p.URL,
		MaxInClause: p.MaxInClause,
		Debug:       p.Debug,
		Scrollable:  p.Scrollable,
		AutoCommit:  p.AutoCommit == nil || *p.AutoCommit,
		Lazy:        p.Lazy,
	}
	if res.MaxInClause <= 0 {
		res.MaxInClause = db.DefaultMaxInClause
	}

	switch {
	case res.Password != "":
	case p.PasswordSecret != "":
		pw, err := sp.Get(p.PasswordSecret)
		if err != nil {
			return db.Options{}, &db.Error{Kind: db.KindConfig, Op: "get password secret", Name: p.PasswordSecret, Err: err}
		}
		res.Password = pw
	case p.PasswordFile != "":
		res.PasswordFile = ExpandPath(p.PasswordFile)
		res.PasswordLoader = func(path string) (string, error) { return secrets.ReadPasswordFile(path, sealKey) }
	}
	return res, nil
}

func (c *Config) validate() error {
	errs := new(multierror.Error)
	if len(c.Databases) == 0 {
		errs = multierror.Append(errs, fmt.Errorf("no databases defined"))
	}
	if c.Default != "" {
		if _, ok := c.Databases[c.Default]; !ok {
			errs = multierror.Append(errs, fmt.Errorf("default database %q not defined", c.Default))
		}
	}
	for _, name := range c.Names() {
		if err := c.Databases[name].validate(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("database %q: %w", name, err))
		}
	}
	return errs.ErrorOrNil()
}

func (p Profile) validate() error {
	if p.Driver == "" {
		return fmt.Errorf("driver not set")
	}
	if _, err := db.LookupProvider(p.Driver); err != nil {
		return err
	}
	if p.Database == "" && p.URL == "" {
		return fmt.Errorf("neither database nor url set")
	}
	if p.PasswordFile != "" && !fileutils.IsFile(ExpandPath(p.PasswordFile)) {
		return fmt.Errorf("password file %s not found", p.PasswordFile)
	}
	if p.MaxInClause < 0 {
		return fmt.Errorf("negative max_in_clause %d", p.MaxInClause)
	}
	return nil
}

// ExpandPath replaces leading ~ with the home directory of the current user
func ExpandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	usr, err := user.Current()
	if err != nil {
		return path
	}
	return filepath.Join(usr.HomeDir, path[1:])
}

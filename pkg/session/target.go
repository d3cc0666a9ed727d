// Package session turns a host name into a connected, probed and resolved
// host: an ssh target, an executor and the host's configuration record.
package session

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kevinburke/ssh_config"
	"github.com/spf13/afero"

	breverrors "github.com/nmlab/rigctl/pkg/errors"
	"github.com/nmlab/rigctl/pkg/remote"
)

// TargetResolver looks host aliases up in an OpenSSH client config. Hosts
// missing from the file, or a missing file, yield a bare target and ssh
// applies its own defaults.
type TargetResolver struct {
	fs         afero.Fs
	configPath string
	homeDir    func() (string, error)
	options    map[string]string
}

func NewDefaultTargetResolver(fs afero.Fs, configPath string) TargetResolver {
	return NewTargetResolver(fs, configPath, os.UserHomeDir)
}

func NewTargetResolver(fs afero.Fs, configPath string, home func() (string, error)) TargetResolver {
	return TargetResolver{
		fs:         fs,
		configPath: configPath,
		homeDir:    home,
	}
}

// WithOptions adds ssh options passed to every target. Options set in the
// config file for a host win.
func (r TargetResolver) WithOptions(options map[string]string) TargetResolver {
	r.options = options
	return r
}

func (r TargetResolver) Target(alias string) (remote.Target, error) {
	home, err := r.homeDir()
	if err != nil {
		return remote.Target{}, breverrors.WrapAndTrace(err)
	}

	target := remote.Target{Alias: alias, Options: map[string]string{}}
	for k, v := range r.options {
		target.Options[k] = v
	}

	cfg, err := r.decode(home)
	if err != nil {
		return remote.Target{}, err
	}
	if cfg == nil {
		return target, nil
	}

	for _, hostBlock := range cfg.Hosts {
		if !hasAlias(hostBlock.Patterns, alias) {
			continue
		}
		return buildTarget(target, collectKVs(hostBlock.Nodes), home)
	}
	return target, nil
}

// Aliases lists the explicitly named hosts of the config file, sorted.
func (r TargetResolver) Aliases() ([]string, error) {
	home, err := r.homeDir()
	if err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}
	cfg, err := r.decode(home)
	if err != nil || cfg == nil {
		return nil, err
	}

	seen := map[string]bool{}
	var aliases []string
	for _, hostBlock := range cfg.Hosts {
		for _, name := range namedPatterns(hostBlock.Patterns) {
			if seen[name] {
				continue
			}
			seen[name] = true
			aliases = append(aliases, name)
		}
	}
	sort.Strings(aliases)
	return aliases, nil
}

func (r TargetResolver) decode(home string) (*ssh_config.Config, error) {
	path := expandPath(r.configPath, home)
	if path == "" {
		return nil, nil
	}
	exists, err := afero.Exists(r.fs, path)
	if err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}
	if !exists {
		return nil, nil
	}

	data, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}
	cfg, err := ssh_config.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, breverrors.WrapAndTrace(fmt.Errorf("failed to parse ssh config at %s: %w", path, err))
	}
	return cfg, nil
}

func buildTarget(target remote.Target, kvs map[string]keyValue, home string) (remote.Target, error) {
	target.Hostname = kvs["hostname"].value
	target.User = kvs["user"].value

	if portStr := kvs["port"].value; portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return remote.Target{}, breverrors.NewValidationError(fmt.Sprintf("invalid Port for %s: %s", target.Alias, portStr))
		}
		target.Port = port
	}

	target.IdentityFile = expandPath(kvs["identityfile"].value, home)

	for k, kv := range kvs {
		if isCoreField(k) {
			continue
		}
		target.Options[kv.key] = kv.value
	}
	return target, nil
}

func hasAlias(patterns []*ssh_config.Pattern, alias string) bool {
	for _, name := range namedPatterns(patterns) {
		if name == alias {
			return true
		}
	}
	return false
}

// namedPatterns skips wildcard and negated patterns.
func namedPatterns(patterns []*ssh_config.Pattern) []string {
	var names []string
	for _, p := range patterns {
		name := strings.TrimSpace(p.String())
		if name == "" || strings.ContainsAny(name, "*?!") {
			continue
		}
		names = append(names, name)
	}
	return names
}

type keyValue struct {
	key   string
	value string
}

// collectKVs indexes a host block by lowercased key, keeping the spelling
// used in the file.
func collectKVs(nodes []ssh_config.Node) map[string]keyValue {
	result := map[string]keyValue{}
	for _, node := range nodes {
		kv, ok := node.(*ssh_config.KV)
		if !ok {
			continue
		}
		key := strings.TrimSpace(kv.Key)
		value := strings.TrimSpace(kv.Value)
		if key == "" {
			continue
		}
		lower := strings.ToLower(key)
		if _, ok := result[lower]; ok {
			// ssh uses the first value it reads
			continue
		}
		result[lower] = keyValue{key: key, value: value}
	}
	return result
}

func expandPath(path string, home string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~") {
		trimmed := strings.TrimPrefix(path, "~")
		return filepath.Join(home, strings.TrimPrefix(trimmed, string(filepath.Separator)))
	}

	if filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(home, path)
}

func isCoreField(key string) bool {
	switch strings.ToLower(key) {
	case "hostname", "user", "port", "identityfile":
		return true
	default:
		return false
	}
}

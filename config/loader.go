package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/kbukum/dwiflow/errors"
	"github.com/kbukum/dwiflow/util"
)

// EnvPrefix is the prefix of environment variables that override config keys.
const EnvPrefix = "DWIFLOW_"

// FileSystem interface for file operations (useful for testing).
type FileSystem interface {
	Exists(path string) bool
	LoadEnv(path string) error
	UserConfigDir() (string, error)
}

// RealFileSystem implements FileSystem using actual file operations.
type RealFileSystem struct{}

func (rfs *RealFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (rfs *RealFileSystem) LoadEnv(path string) error {
	return godotenv.Load(path)
}

func (rfs *RealFileSystem) UserConfigDir() (string, error) {
	return os.UserConfigDir()
}

// Resolver handles finding and resolving config and env files.
type Resolver struct {
	FileSystem FileSystem
}

// ResolvedFiles contains the resolved config and env file paths.
type ResolvedFiles struct {
	ConfigFile string
	EnvFile    string
}

// ResolveFiles finds config and env files for an application.
// Explicit paths win; otherwise standard locations are searched.
func (cr *Resolver) ResolveFiles(appName string, opts LoaderConfig) ResolvedFiles {
	resolved := ResolvedFiles{
		ConfigFile: opts.ConfigFile,
		EnvFile:    opts.EnvFile,
	}
	if resolved.ConfigFile == "" {
		resolved.ConfigFile = cr.first(cr.configCandidates(appName))
	}
	if resolved.EnvFile == "" {
		resolved.EnvFile = cr.first([]string{
			".env." + appName,
			".env",
			filepath.Join("config", ".env."+appName),
			filepath.Join("config", ".env"),
		})
	}
	return resolved
}

func (cr *Resolver) configCandidates(appName string) []string {
	paths := []string{
		appName + ".yml",
		appName + ".yaml",
		"config.yml",
		filepath.Join("config", appName+".yml"),
		filepath.Join("config", "config.yml"),
	}
	if dir, err := cr.FileSystem.UserConfigDir(); err == nil && dir != "" {
		paths = append(paths,
			filepath.Join(dir, appName, "config.yml"),
			filepath.Join(dir, appName, "config.yaml"),
		)
	}
	return paths
}

func (cr *Resolver) first(paths []string) string {
	for _, path := range paths {
		if cr.FileSystem.Exists(path) {
			return path
		}
	}
	return ""
}

// LoaderConfig holds dependencies and optional file overrides.
type LoaderConfig struct {
	FileSystem FileSystem
	ConfigFile string // Direct config file path (optional)
	EnvFile    string // Direct env file path (optional)
}

// LoaderOption is a functional option for LoadConfig.
type LoaderOption func(*LoaderConfig)

// WithFileSystem sets a custom filesystem for the loader.
func WithFileSystem(fs FileSystem) LoaderOption {
	return func(lc *LoaderConfig) { lc.FileSystem = fs }
}

// WithConfigFile sets an explicit config file path.
func WithConfigFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.ConfigFile = path }
}

// WithEnvFile sets an explicit .env file path.
func WithEnvFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvFile = path }
}

// LoadConfig loads configuration into cfg. An explicitly requested config
// file that does not exist is an error; a missing searched-for file is not.
func LoadConfig(appName string, cfg interface{}, opts ...LoaderOption) error {
	var lc LoaderConfig
	for _, opt := range opts {
		opt(&lc)
	}
	if lc.FileSystem == nil {
		lc.FileSystem = &RealFileSystem{}
	}
	if lc.ConfigFile != "" && !lc.FileSystem.Exists(lc.ConfigFile) {
		return errors.NotFound("config file", lc.ConfigFile)
	}

	resolver := &Resolver{FileSystem: lc.FileSystem}
	files := resolver.ResolveFiles(appName, lc)

	return loadFromResolvedFiles(appName, cfg, files, lc.FileSystem)
}

// loadFromResolvedFiles loads configuration from specific files.
func loadFromResolvedFiles(appName string, cfg interface{}, files ResolvedFiles, fs FileSystem) error {
	v := viper.New()

	if files.ConfigFile != "" {
		v.SetConfigFile(files.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return errors.InvalidInput("config", fmt.Sprintf("reading %s: %v", files.ConfigFile, err)).WithCause(err)
		}
	}

	// .env only adds variables that are not already set in the environment.
	if files.EnvFile != "" && fs.Exists(files.EnvFile) {
		if err := fs.LoadEnv(files.EnvFile); err != nil {
			return errors.InvalidInput("env", fmt.Sprintf("loading %s: %v", files.EnvFile, err)).WithCause(err)
		}
	}
	bindPrefixedEnv(v, os.Environ(), structKeys(reflect.TypeOf(cfg), ""))

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config for %s: %w", appName, err)
	}
	return nil
}

// bindPrefixedEnv sets every DWIFLOW_-prefixed variable under the first of
// its key spellings that names a field of the target struct. Variables that
// match no field are ignored.
func bindPrefixedEnv(v *viper.Viper, environ []string, known map[string]bool) {
	for _, env := range environ {
		key, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		for _, variant := range generateEnvKeyVariants(strings.TrimPrefix(key, EnvPrefix)) {
			if known[variant] {
				v.Set(variant, util.SanitizeEnvValue(value))
				break
			}
		}
	}
}

// structKeys lists the dotted mapstructure keys of every leaf field of t.
// Squashed embedded structs contribute their fields at the parent level.
func structKeys(t reflect.Type, prefix string) map[string]bool {
	keys := make(map[string]bool)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return keys
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("mapstructure")
		name, opts, _ := strings.Cut(tag, ",")
		if name == "-" {
			continue
		}
		ft := f.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if strings.Contains(opts, "squash") {
			for k := range structKeys(ft, prefix) {
				keys[k] = true
			}
			continue
		}
		if name == "" {
			name = strings.ToLower(f.Name)
		}
		full := name
		if prefix != "" {
			full = prefix + "." + name
		}
		if ft.Kind() == reflect.Struct && ft != reflect.TypeOf(time.Time{}) {
			for k := range structKeys(ft, full) {
				keys[k] = true
			}
			continue
		}
		keys[full] = true
	}
	return keys
}

// generateEnvKeyVariants creates all possible key variants for an environment
// variable name with the prefix already removed.
//
//	PIPELINE_LOG_DIR -> [pipeline_log_dir, pipeline.log.dir, pipeline.log_dir]
func generateEnvKeyVariants(envKey string) []string {
	lowerKey := strings.ToLower(envKey)
	parts := strings.Split(lowerKey, "_")

	if len(parts) <= 1 {
		return []string{lowerKey}
	}

	variants := []string{
		lowerKey,
		strings.ReplaceAll(lowerKey, "_", "."),
	}

	// Every split point: a.b.c_d, a.b_c_d, ...
	for i := 1; i < len(parts); i++ {
		prefix := strings.Join(parts[:i], ".")
		suffix := strings.Join(parts[i:], "_")
		variants = append(variants, prefix+"."+suffix)
	}
	// Two-level nesting with an underscored leaf: observability.tracing.sample_rate
	for i := 1; i < len(parts)-1; i++ {
		for j := i + 1; j < len(parts); j++ {
			variants = append(variants,
				strings.Join(parts[:i], "_")+"."+strings.Join(parts[i:j], "_")+"."+strings.Join(parts[j:], "_"))
		}
	}

	return removeDuplicates(variants)
}

// removeDuplicates removes duplicate strings from a slice.
func removeDuplicates(items []string) []string {
	seen := make(map[string]bool, len(items))
	result := make([]string, 0, len(items))
	for _, item := range items {
		if !seen[item] {
			seen[item] = true
			result = append(result, item)
		}
	}
	return result
}

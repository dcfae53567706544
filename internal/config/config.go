package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/John-Robertt/subfetch/internal/infra/httpx"
	"github.com/John-Robertt/subfetch/internal/language"
	"github.com/John-Robertt/subfetch/internal/match"
)

const (
	// ErrCodeNotFound 表示显式指定（--config 或 $SUBFETCH_CONFIG）的配置文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

const (
	// DefaultProvider 是 provider 的最终默认值（CLI、环境变量与配置文件都未指定时）。
	DefaultProvider = "podnapisi"
	// DefaultServerAddr 是 serve 子命令的默认监听地址。
	DefaultServerAddr = "127.0.0.1:8383"
)

// 环境变量名。
const (
	EnvConfig        = "SUBFETCH_CONFIG"
	EnvProvider      = "SUBFETCH_PROVIDER"
	EnvLanguage      = "SUBFETCH_LANGUAGE"
	EnvProxyURL      = "SUBFETCH_PROXY_URL"
	EnvOpenSubsToken = "SUBFETCH_OPENSUBTITLES_CSRF_TOKEN"
)

// CLIArgs 是 CLI 暴露的覆盖项，并保留“是否显式指定”的信息，
// 例如 --insecure=false 必须能覆盖配置文件里的 true。
type CLIArgs struct {
	ConfigPath string

	Providers    []string
	ProvidersSet bool

	Language    string
	LanguageSet bool

	OutputDir    string
	OutputDirSet bool

	ProxyURL    string
	ProxyURLSet bool

	Insecure    bool
	InsecureSet bool

	LogLevel    string
	LogLevelSet bool

	LogFormat    string
	LogFormatSet bool

	ServerAddr    string
	ServerAddrSet bool
}

// FileConfig 对应 config.toml 的解析结构。
type FileConfig struct {
	Provider  string                    `toml:"provider"`
	Fallback  []string                  `toml:"fallback"`
	Language  string                    `toml:"language"`
	OutputDir string                    `toml:"output_dir"`
	HTTP      HTTPConfig                `toml:"http"`
	Match     MatchConfig               `toml:"match"`
	Log       LogConfig                 `toml:"log"`
	Server    ServerConfig              `toml:"server"`
	Providers map[string]ProviderConfig `toml:"providers"`
}

type HTTPConfig struct {
	ProxyURL           string `toml:"proxy_url"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
	// Timeout 是 Go duration 文本，例如 "30s"。
	Timeout  string `toml:"timeout"`
	RetryMax int    `toml:"retry_max"`
}

type MatchConfig struct {
	Transpositions    *bool    `toml:"transpositions"`
	WholeString       bool     `toml:"whole_string"`
	LanguageThreshold *float64 `toml:"language_threshold"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

// ProviderConfig 是单个 provider 的可选设置。
type ProviderConfig struct {
	BaseURL   string `toml:"base_url"`
	CSRFToken string `toml:"csrf_token"`
}

// EffectiveConfig 是合并并规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	// ConfigPath 为实际读取的配置文件；未读取任何文件时为空。
	ConfigPath string

	// Providers 按尝试顺序排列：第一个是首选，其余是回退。
	Providers []string
	Language  language.Code
	OutputDir string

	HTTP              httpx.Options
	Match             match.Options
	LanguageThreshold float64

	LogLevel   string
	LogFormat  string
	ServerAddr string

	ProviderSettings map[string]ProviderConfig
}

// Env 是加载配置所需的外部环境；测试中可以完全替换。
type Env struct {
	Cwd    string
	Home   string
	Getenv func(string) string
	// KnownProviders 是已注册的 provider 名；为空时不校验。
	KnownProviders []string
}

// OSEnv 返回当前进程的环境。
func OSEnv(known []string) Env {
	cwd, _ := os.Getwd()
	home, _ := os.UserHomeDir()
	return Env{Cwd: cwd, Home: home, Getenv: os.Getenv, KnownProviders: known}
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Path == "" {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// DefaultConfigPath 返回 <home>/.config/subfetch/config.toml。
func DefaultConfigPath(home string) string {
	if strings.TrimSpace(home) == "" {
		return ""
	}
	return filepath.Join(home, ".config", "subfetch", "config.toml")
}

// LoadEffective 发现并读取配置文件，然后与环境变量、CLI 参数合并为最终配置。
//
// 发现规则：
// 1) --config：必须存在
// 2) $SUBFETCH_CONFIG：必须存在
// 3) ~/.config/subfetch/config.toml：可选
//
// 覆盖优先级：CLI（显式指定）> 环境变量 > 配置文件 > 默认值。
// <cwd>/.env 中的变量只补充真实环境中不存在的项。
func LoadEffective(env Env, cli CLIArgs) (EffectiveConfig, error) {
	getenv, err := envLookup(env)
	if err != nil {
		return EffectiveConfig{}, err
	}

	cfgPath, required := cli.ConfigPath, true
	if strings.TrimSpace(cfgPath) == "" {
		cfgPath = getenv(EnvConfig)
	}
	if strings.TrimSpace(cfgPath) == "" {
		cfgPath, required = DefaultConfigPath(env.Home), false
	}
	cfgPath = absFrom(env.Cwd, cfgPath)

	var fc FileConfig
	loaded := ""
	if cfgPath != "" {
		var exists bool
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		if !exists && required {
			return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
		}
		if exists {
			loaded = cfgPath
		}
	}

	eff, err := merge(env, getenv, cli, fc)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: loaded, Err: err}
	}
	eff.ConfigPath = loaded
	return eff, nil
}

// envLookup 合并真实环境与 <cwd>/.env（真实环境优先）。
func envLookup(env Env) (func(string) string, error) {
	get := env.Getenv
	if get == nil {
		get = func(string) string { return "" }
	}
	if strings.TrimSpace(env.Cwd) == "" {
		return get, nil
	}

	dotenv, err := godotenv.Read(filepath.Join(env.Cwd, ".env"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return get, nil
		}
		return nil, &Error{Code: ErrCodeInvalid, Path: filepath.Join(env.Cwd, ".env"), Err: err}
	}
	return func(k string) string {
		if v := get(k); v != "" {
			return v
		}
		return dotenv[k]
	}, nil
}

func merge(env Env, getenv func(string) string, cli CLIArgs, fc FileConfig) (EffectiveConfig, error) {
	// providers：CLI > env > config(provider + fallback) > 默认
	var providers []string
	switch {
	case cli.ProvidersSet:
		providers = cli.Providers
	case strings.TrimSpace(getenv(EnvProvider)) != "":
		providers = strings.Split(getenv(EnvProvider), ",")
	case strings.TrimSpace(fc.Provider) != "":
		providers = append([]string{fc.Provider}, fc.Fallback...)
	default:
		providers = append([]string{DefaultProvider}, fc.Fallback...)
	}
	providers = normProviders(providers)
	if len(providers) == 0 {
		return EffectiveConfig{}, errors.New("provider 不能为空")
	}
	if err := validateProviders(providers, env.KnownProviders); err != nil {
		return EffectiveConfig{}, err
	}

	// language：CLI > env > config；空值表示不过滤
	langText := pick(cli.LanguageSet, cli.Language, getenv(EnvLanguage), fc.Language)
	var lang language.Code
	if strings.TrimSpace(langText) != "" {
		c, ok := language.Parse(langText)
		if !ok {
			return EffectiveConfig{}, fmt.Errorf("language 不是已知代码：%q", langText)
		}
		lang = c
	}

	outputDir := pick(cli.OutputDirSet, cli.OutputDir, "", fc.OutputDir)
	if outputDir == "" {
		outputDir = "."
	}
	outputDir = absFrom(env.Cwd, expandHome(outputDir, env.Home))

	proxyURL := strings.TrimSpace(pick(cli.ProxyURLSet, cli.ProxyURL, getenv(EnvProxyURL), fc.HTTP.ProxyURL))
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return EffectiveConfig{}, fmt.Errorf("http.proxy_url 无效：%q", proxyURL)
		}
	}

	insecure := fc.HTTP.InsecureSkipVerify
	if cli.InsecureSet {
		insecure = cli.Insecure
	}

	timeout := httpx.DefaultTimeout
	if s := strings.TrimSpace(fc.HTTP.Timeout); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return EffectiveConfig{}, fmt.Errorf("http.timeout 无效：%w", err)
		}
		if d <= 0 {
			return EffectiveConfig{}, fmt.Errorf("http.timeout 必须大于 0：%q", s)
		}
		timeout = d
	}
	if fc.HTTP.RetryMax < 0 {
		return EffectiveConfig{}, fmt.Errorf("http.retry_max 不能为负数：%d", fc.HTTP.RetryMax)
	}

	mopts := match.DefaultOptions()
	if fc.Match.Transpositions != nil {
		mopts.Transpositions = *fc.Match.Transpositions
	}
	mopts.WholeString = fc.Match.WholeString

	threshold := language.DefaultThreshold
	if fc.Match.LanguageThreshold != nil {
		threshold = *fc.Match.LanguageThreshold
		if threshold <= 0 || threshold > 1 {
			return EffectiveConfig{}, fmt.Errorf("match.language_threshold 必须在 (0, 1] 内：%v", threshold)
		}
	}

	settings := make(map[string]ProviderConfig, len(fc.Providers))
	for name, pc := range fc.Providers {
		name = strings.ToLower(strings.TrimSpace(name))
		if err := validateProviders([]string{name}, env.KnownProviders); err != nil {
			return EffectiveConfig{}, fmt.Errorf("[providers.%s]：%w", name, err)
		}
		if b := strings.TrimSpace(pc.BaseURL); b != "" {
			u, err := url.Parse(b)
			if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
				return EffectiveConfig{}, fmt.Errorf("providers.%s.base_url 必须是 http/https：%q", name, b)
			}
		}
		settings[name] = pc
	}
	if tok := strings.TrimSpace(getenv(EnvOpenSubsToken)); tok != "" {
		pc := settings["opensubtitlescom"]
		pc.CSRFToken = tok
		settings["opensubtitlescom"] = pc
	}

	serverAddr := pick(cli.ServerAddrSet, cli.ServerAddr, "", fc.Server.Addr)
	if serverAddr == "" {
		serverAddr = DefaultServerAddr
	}

	return EffectiveConfig{
		Providers: providers,
		Language:  lang,
		OutputDir: outputDir,
		HTTP: httpx.Options{
			ProxyURL:           proxyURL,
			InsecureSkipVerify: insecure,
			Timeout:            timeout,
			RetryMax:           fc.HTTP.RetryMax,
		},
		Match:             mopts,
		LanguageThreshold: threshold,
		LogLevel:          pick(cli.LogLevelSet, cli.LogLevel, "", fc.Log.Level),
		LogFormat:         pick(cli.LogFormatSet, cli.LogFormat, "", fc.Log.Format),
		ServerAddr:        serverAddr,
		ProviderSettings:  settings,
	}, nil
}

// pick 按 CLI（显式指定）> env > file 取第一个非空值。
func pick(cliSet bool, cliVal, envVal, fileVal string) string {
	if cliSet {
		return strings.TrimSpace(cliVal)
	}
	if v := strings.TrimSpace(envVal); v != "" {
		return v
	}
	return strings.TrimSpace(fileVal)
}

func normProviders(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, p := range in {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func validateProviders(names, known []string) error {
	if len(known) == 0 {
		return nil
	}
	for _, n := range names {
		ok := false
		for _, k := range known {
			if n == k {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("未知 provider：%q（可选：%s）", n, strings.Join(known, ", "))
		}
	}
	return nil
}

func expandHome(p, home string) string {
	if home == "" {
		return p
	}
	if p == "~" {
		return home
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(home, p[2:])
	}
	return p
}

// absFrom 以 base 为基准，把 p 变为 clean + absolute。
func absFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) || base == "" {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 TOML 配置文件；未知字段视为错误（拼错的键不应被静默忽略）。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	dec := toml.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}

package main

import (
	"github.com/John-Robertt/subfetch/internal/config"
	"github.com/John-Robertt/subfetch/internal/provider"
	"github.com/John-Robertt/subfetch/internal/provider/moviesubtitles"
	"github.com/John-Robertt/subfetch/internal/provider/moviesubtitlesrt"
	"github.com/John-Robertt/subfetch/internal/provider/opensubtitlescom"
	"github.com/John-Robertt/subfetch/internal/provider/podnapisi"
	"github.com/John-Robertt/subfetch/internal/provider/yifysubtitles"
)

// providerSet 按配置构造全部内置 provider；settings 为 nil 时全部使用默认站点。
func providerSet(settings map[string]config.ProviderConfig) []provider.Provider {
	base := func(name string) string { return settings[name].BaseURL }
	return []provider.Provider{
		moviesubtitles.Provider{BaseURL: base("moviesubtitles")},
		moviesubtitlesrt.Provider{BaseURL: base("moviesubtitlesrt")},
		opensubtitlescom.Provider{
			BaseURL:   base("opensubtitlescom"),
			CSRFToken: settings["opensubtitlescom"].CSRFToken,
		},
		podnapisi.Provider{BaseURL: base("podnapisi")},
		yifysubtitles.Provider{BaseURL: base("yifysubtitles")},
	}
}

func buildRegistry(eff config.EffectiveConfig) (provider.Registry, error) {
	return provider.NewRegistry(providerSet(eff.ProviderSettings)...)
}

// knownProviders 返回内置 provider 名（用于配置校验）。
func knownProviders() []string {
	reg, err := provider.NewRegistry(providerSet(nil)...)
	if err != nil {
		return nil
	}
	return reg.Names()
}

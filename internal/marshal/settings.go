package marshal

import (
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/starford/dbfolder/internal/chain"
	"github.com/starford/dbfolder/internal/models"
)

// Settings handler titles.
const (
	TitleGlobalSettings = "global settings"
	TitleMediaSettings  = "media settings"
	TitleLocalSettings  = "local settings"
)

var (
	globalDefaults = entriesOf(models.DefaultSettings().GlobalSettings)
	mediaDefaults  = entriesOf(models.DefaultSettings().GlobalSettings.MediaSettings)

	settingsOnce     sync.Once
	settingsPipeline *chain.Chain[*Response]
)

// SettingsPipeline returns the shared chain that repairs the plugin-wide
// settings file.
func SettingsPipeline() *chain.Chain[*Response] {
	settingsOnce.Do(func() {
		settingsPipeline = chain.New[*Response](
			sectionHandler(TitleGlobalSettings, "global_settings", globalDefaults),
			mediaSettingsHandler(),
			sectionHandler(TitleLocalSettings, "local_settings", localDefaults),
		)
	})
	return settingsPipeline
}

// Settings repairs a raw settings document and decodes it.
func Settings(raw map[string]any) (*models.DatabaseSettings, map[string][]string, error) {
	if raw == nil {
		raw = map[string]any{}
	}
	r := SettingsPipeline().Handle(&Response{Yaml: raw, Errors: map[string][]string{}})

	out, err := yaml.Marshal(r.Yaml)
	if err != nil {
		return nil, r.Errors, fmt.Errorf("marshal: encode settings: %w", err)
	}
	var settings models.DatabaseSettings
	if err := yaml.Unmarshal(out, &settings); err != nil {
		return nil, r.Errors, fmt.Errorf("marshal: decode settings: %w", err)
	}
	return &settings, r.Errors, nil
}

func sectionHandler(title, key string, defaults []entry) *chain.Step[*Response] {
	return chain.Func(title, func(s *chain.Step[*Response], r *Response) *Response {
		section, ok := asMap(r.Yaml[key])
		if !ok {
			r.Yaml[key] = defaultsMap(defaults)
			s.AddError(fmt.Sprintf("%s was null or invalid. Defaults loaded", key))
			return s.GoNext(r)
		}
		fillDefaults(s, section, defaults)
		r.Yaml[key] = section
		return s.GoNext(r)
	})
}

func mediaSettingsHandler() *chain.Step[*Response] {
	return chain.Func(TitleMediaSettings, func(s *chain.Step[*Response], r *Response) *Response {
		global, ok := asMap(r.Yaml["global_settings"])
		if !ok {
			return s.GoNext(r)
		}
		media, ok := asMap(global["media_settings"])
		if !ok {
			global["media_settings"] = defaultsMap(mediaDefaults)
			s.AddError("media_settings was null or invalid. Defaults loaded")
			return s.GoNext(r)
		}
		fillDefaults(s, media, mediaDefaults)
		global["media_settings"] = media
		return s.GoNext(r)
	})
}

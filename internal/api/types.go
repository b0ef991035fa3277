package api

import (
	"github.com/faradayfan/dedicated-server-manager/internal/instances"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type ListResponse struct {
	Servers []instances.Summary `json:"servers"`
}

// SettingView is one setting of a profile as shown to clients. Values use
// their INI text form.
type SettingView struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Value       string `json:"value"`
	Default     string `json:"default"`
	Overridden  bool   `json:"overridden"`
	Favorite    bool   `json:"favorite,omitempty"`
	Location    string `json:"location"`
	Section     string `json:"section,omitempty"`
	Description string `json:"description,omitempty"`
	Deprecated  bool   `json:"deprecated,omitempty"`
}

type SettingsResponse struct {
	Settings []SettingView `json:"settings"`
}

type SetSettingRequest struct {
	Value    string `json:"value"`
	Favorite bool   `json:"favorite"`
}

type SaveResponse struct {
	Warnings []string `json:"warnings"`
}

type CreateRequest struct {
	Name       string `json:"name"`
	InstallDir string `json:"install_dir"`
}

type ImportRequest struct {
	Dir        string `json:"dir"`
	IncludeIni *bool  `json:"include_ini,omitempty"`
}

// ImportResponse carries the new instance and any settings dropped while
// reading the existing config.
type ImportResponse struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Warnings []string `json:"warnings"`
}

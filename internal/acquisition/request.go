package acquisition

import (
	"net/url"
	"strconv"

	"github.com/adamancini/hotpush/internal/types"
)

// UpdateRequest is the query sent to the update-check endpoint.
type UpdateRequest struct {
	DeploymentKey  string
	AppVersion     string
	PackageHash    string
	Label          string
	ClientUniqueID string
	IsCompanion    bool
}

// NewUpdateRequest builds a request from the configuration and the local package.
func NewUpdateRequest(cfg types.Configuration, local *types.LocalPackage) UpdateRequest {
	return UpdateRequest{
		DeploymentKey:  cfg.DeploymentKey,
		AppVersion:     local.AppVersion,
		PackageHash:    local.PackageHash,
		Label:          local.Label,
		ClientUniqueID: cfg.ClientUniqueID,
		IsCompanion:    cfg.IsCompanion,
	}
}

// Values encodes the request as query parameters. Empty fields are omitted.
func (r UpdateRequest) Values() url.Values {
	v := url.Values{}
	set := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}
	set("deploymentKey", r.DeploymentKey)
	set("appVersion", r.AppVersion)
	set("packageHash", r.PackageHash)
	set("label", r.Label)
	set("clientUniqueId", r.ClientUniqueID)
	v.Set("isCompanion", strconv.FormatBool(r.IsCompanion))
	return v
}

// UpdateResponse is the body returned by the update-check endpoint.
type UpdateResponse struct {
	UpdateInfo UpdateInfo `json:"updateInfo"`
}

// UpdateInfo describes what the server has for this client.
type UpdateInfo struct {
	DownloadURL            string `json:"downloadURL"`
	Description            string `json:"description"`
	IsAvailable            bool   `json:"isAvailable"`
	IsMandatory            bool   `json:"isMandatory"`
	AppVersion             string `json:"appVersion"`
	PackageHash            string `json:"packageHash"`
	Label                  string `json:"label"`
	PackageSize            int64  `json:"packageSize"`
	UpdateAppVersion       bool   `json:"updateAppVersion"`
	ShouldRunBinaryVersion bool   `json:"shouldRunBinaryVersion"`
}

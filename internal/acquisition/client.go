// Package acquisition asks the update server whether a newer release exists.
package acquisition

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/adamancini/hotpush/internal/errs"
	"github.com/adamancini/hotpush/internal/logging"
	"github.com/adamancini/hotpush/internal/transport"
	"github.com/adamancini/hotpush/internal/types"
)

// UpdateCheckPath is appended to the server URL.
const UpdateCheckPath = "/updateCheck"

var log = logging.L("acquisition")

// OutcomeKind classifies the server's answer.
type OutcomeKind int

const (
	// OutcomeNone means the client is current.
	OutcomeNone OutcomeKind = iota
	// OutcomeBinaryRedirect means the host binary itself must be updated.
	OutcomeBinaryRedirect
	// OutcomeRelease means a downloadable release is available.
	OutcomeRelease
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeBinaryRedirect:
		return "binary-redirect"
	case OutcomeRelease:
		return "release"
	default:
		return "none"
	}
}

// Outcome is the interpreted update-check response. Package is nil for OutcomeNone.
type Outcome struct {
	Kind                   OutcomeKind
	Package                *types.RemotePackage
	ShouldRunBinaryVersion bool
}

// Client performs update checks.
type Client struct {
	fetcher transport.Fetcher
}

// NewClient returns a Client that sends requests through fetcher.
func NewClient(fetcher transport.Fetcher) *Client {
	return &Client{fetcher: fetcher}
}

// QueryUpdate asks the server about local, which may be an empty package
// carrying only the binary's appVersion.
func (c *Client) QueryUpdate(ctx context.Context, cfg types.Configuration, local *types.LocalPackage) (Outcome, error) {
	const op = "queryUpdate"

	if local == nil || local.AppVersion == "" {
		return Outcome{}, errs.New(errs.InvalidParameter, op, "appVersion is required to check for updates")
	}

	endpoint, err := UpdateCheckURL(cfg.ServerURL, NewUpdateRequest(cfg, local))
	if err != nil {
		return Outcome{}, errs.E(errs.InvalidParameter, op, err)
	}

	log.Debug("checking for update", "url", endpoint, logging.KeyHash, local.PackageHash)

	body, err := c.fetcher.FetchBytes(ctx, endpoint)
	if err != nil {
		return Outcome{}, errs.E(errs.AcquisitionFailed, op, err)
	}

	var resp UpdateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Outcome{}, errs.E(errs.AcquisitionFailed, op, fmt.Errorf("failed to decode update response: %w", err))
	}

	return Decide(resp.UpdateInfo, cfg.DeploymentKey), nil
}

// Decide maps an update-check response to an Outcome.
func Decide(info UpdateInfo, deploymentKey string) Outcome {
	out := Outcome{ShouldRunBinaryVersion: info.ShouldRunBinaryVersion}

	switch {
	case info.UpdateAppVersion:
		out.Kind = OutcomeBinaryRedirect
		out.Package = &types.RemotePackage{
			Descriptor:       types.Descriptor{AppVersion: info.AppVersion},
			UpdateAppVersion: true,
		}
	case !info.IsAvailable:
		out.Kind = OutcomeNone
	default:
		out.Kind = OutcomeRelease
		out.Package = &types.RemotePackage{
			Descriptor: types.Descriptor{
				AppVersion:    info.AppVersion,
				DeploymentKey: deploymentKey,
				Description:   info.Description,
				IsMandatory:   info.IsMandatory,
				Label:         info.Label,
				PackageHash:   info.PackageHash,
			},
			DownloadURL: info.DownloadURL,
			PackageSize: info.PackageSize,
		}
	}
	return out
}

// UpdateCheckURL joins serverURL, the update-check path and the request query.
// A server URL without a scheme is treated as an https host.
func UpdateCheckURL(serverURL string, req UpdateRequest) (string, error) {
	if strings.TrimSpace(serverURL) == "" {
		return "", fmt.Errorf("server URL is required")
	}
	if !strings.Contains(serverURL, "://") {
		serverURL = "https://" + serverURL
	}

	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL %q: %w", serverURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid server URL %q: missing host", serverURL)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + UpdateCheckPath
	u.RawQuery = req.Values().Encode()
	return u.String(), nil
}

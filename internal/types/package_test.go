package types

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLocalPackage(t *testing.T) {
	remote := &RemotePackage{
		Descriptor: Descriptor{
			AppVersion:    "1.0.0",
			DeploymentKey: "key",
			Label:         "v3",
			PackageHash:   "abc",
			IsMandatory:   true,
			FailedInstall: true,
		},
		DownloadURL: "https://example.com/abc.zip",
	}

	local := NewLocalPackage(remote, "www/index.html")

	if !local.IsPending {
		t.Error("new local package should be pending")
	}
	if local.IsFirstRun {
		t.Error("new local package should not be first run")
	}
	if local.FailedInstall {
		t.Error("new local package should not carry failedInstall")
	}
	if local.PackageHash != "abc" || local.Label != "v3" || !local.IsMandatory {
		t.Errorf("descriptor not copied: %+v", local.Descriptor)
	}
	if local.EntryPoint != "www/index.html" {
		t.Errorf("EntryPoint = %q", local.EntryPoint)
	}
	if local.Kind() != KindLocal || remote.Kind() != KindRemote {
		t.Error("unexpected package kinds")
	}
}

func TestLocalPackageJSONKeys(t *testing.T) {
	pkg := LocalPackage{
		Descriptor: Descriptor{PackageHash: "h1", AppVersion: "1.0.0"},
		EntryPoint: "index.html",
	}

	data, err := json.Marshal(pkg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	for _, key := range []string{`"packageHash":"h1"`, `"appEntryPoint":"index.html"`, `"isPending":false`, `"appVersion":"1.0.0"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("marshaled package %s missing %s", data, key)
		}
	}
}

func TestIsBinaryRedirect(t *testing.T) {
	var nilPkg *RemotePackage
	if nilPkg.IsBinaryRedirect() {
		t.Error("nil package should not be a binary redirect")
	}
	if !(&RemotePackage{UpdateAppVersion: true}).IsBinaryRedirect() {
		t.Error("updateAppVersion package should be a binary redirect")
	}
}

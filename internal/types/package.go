package types

// PackageKind tags the two package variants.
type PackageKind int

const (
	// KindRemote is a release advertised by the update server.
	KindRemote PackageKind = iota
	// KindLocal is a release materialized on disk.
	KindLocal
)

// String returns a readable name for the kind.
func (k PackageKind) String() string {
	if k == KindLocal {
		return "local"
	}
	return "remote"
}

// Descriptor holds the fields shared by remote and local packages.
type Descriptor struct {
	AppVersion    string `json:"appVersion" yaml:"appVersion"`
	DeploymentKey string `json:"deploymentKey" yaml:"deploymentKey"`
	Description   string `json:"description" yaml:"description"`
	IsMandatory   bool   `json:"isMandatory" yaml:"isMandatory"`
	Label         string `json:"label" yaml:"label"`
	PackageHash   string `json:"packageHash" yaml:"packageHash"`
	FailedInstall bool   `json:"failedInstall" yaml:"failedInstall"`
}

// Package is implemented by both package variants.
type Package interface {
	Meta() Descriptor
	Kind() PackageKind
}

// RemotePackage is a release the update server offered.
//
// UpdateAppVersion marks the binary-redirect variant: there is nothing to
// download and the host binary itself must be updated.
type RemotePackage struct {
	Descriptor       `yaml:",inline"`
	DownloadURL      string `json:"downloadUrl" yaml:"downloadUrl,omitempty"`
	PackageSize      int64  `json:"packageSize" yaml:"packageSize,omitempty"`
	UpdateAppVersion bool   `json:"updateAppVersion" yaml:"updateAppVersion"`
}

// Meta returns the shared descriptor.
func (p *RemotePackage) Meta() Descriptor { return p.Descriptor }

// Kind returns KindRemote.
func (p *RemotePackage) Kind() PackageKind { return KindRemote }

// IsBinaryRedirect reports whether the package only signals a binary update.
func (p *RemotePackage) IsBinaryRedirect() bool {
	return p != nil && p.UpdateAppVersion
}

// LocalPackage is a release installed under the package store.
type LocalPackage struct {
	Descriptor  `yaml:",inline"`
	IsPending   bool   `json:"isPending" yaml:"isPending"`
	IsFirstRun  bool   `json:"isFirstRun" yaml:"isFirstRun"`
	EntryPoint  string `json:"appEntryPoint" yaml:"appEntryPoint,omitempty"`
	IsDebugOnly bool   `json:"_isDebugOnly" yaml:"isDebugOnly,omitempty"`
}

// Meta returns the shared descriptor.
func (p *LocalPackage) Meta() Descriptor { return p.Descriptor }

// Kind returns KindLocal.
func (p *LocalPackage) Kind() PackageKind { return KindLocal }

// NewLocalPackage builds the on-disk metadata for a freshly downloaded remote package.
func NewLocalPackage(remote *RemotePackage, entryPoint string) *LocalPackage {
	d := remote.Descriptor
	d.FailedInstall = false
	return &LocalPackage{
		Descriptor: d,
		IsPending:  true,
		EntryPoint: entryPoint,
	}
}

// PackageInfo is the pointer record naming the current and previous package.
// Empty strings mean unset.
type PackageInfo struct {
	CurrentPackage  string `json:"currentPackage,omitempty"`
	PreviousPackage string `json:"previousPackage,omitempty"`
}

// PendingUpdate marks an installed package that has not yet confirmed a successful start.
type PendingUpdate struct {
	Hash      string `json:"hash"`
	IsLoading bool   `json:"isLoading"`
}

// Configuration is the per-operation view of the engine's identity and endpoints.
// It is derived on demand and never persisted as a unit.
type Configuration struct {
	AppName        string `json:"appName" yaml:"appName"`
	AppVersion     string `json:"appVersion" yaml:"appVersion"`
	DeploymentKey  string `json:"deploymentKey" yaml:"deploymentKey"`
	ServerURL      string `json:"serverUrl" yaml:"serverUrl"`
	ClientUniqueID string `json:"clientUniqueId" yaml:"clientUniqueId"`
	BaseDirectory  string `json:"baseDirectory" yaml:"baseDirectory"`
	IsCompanion    bool   `json:"isCompanion" yaml:"isCompanion"`
}

package packages

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"github.com/adamancini/hotpush/internal/errs"
	"github.com/adamancini/hotpush/internal/settings"
	"github.com/adamancini/hotpush/internal/transport"
	"github.com/adamancini/hotpush/internal/types"
)

type fakeFetcher struct {
	payloads map[string][]byte
	err      error
}

func (f *fakeFetcher) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeFetcher) Download(ctx context.Context, url string, dst transport.Sink, progress transport.ProgressFunc) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	data, ok := f.payloads[url]
	if !ok {
		return 0, &transport.StatusError{URL: url, Code: 404}
	}
	n, err := dst.Write(data)
	if progress != nil {
		progress(int64(n), int64(len(data)))
	}
	return int64(n), err
}

type fixture struct {
	store    *Store
	fs       afero.Fs
	settings *settings.Store
	fetcher  *fakeFetcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	st := settings.New(settings.NewMemoryKV(), "MyApp")
	fetcher := &fakeFetcher{payloads: map[string][]byte{}}
	store := NewStore(fs, Config{BaseDirectory: "/data", AppName: "MyApp"}, st, fetcher)
	return &fixture{store: store, fs: fs, settings: st, fetcher: fetcher}
}

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("zip Create(%s) error = %v", name, err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatalf("zip Write(%s) error = %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zip Close() error = %v", err)
	}
	return buf.Bytes()
}

func remoteFor(hash string) *types.RemotePackage {
	return &types.RemotePackage{
		Descriptor: types.Descriptor{
			AppVersion:    "1.0.0",
			DeploymentKey: "dk",
			Label:         "v-" + hash,
			PackageHash:   hash,
		},
		DownloadURL: "https://cdn.test/" + hash,
	}
}

// serve registers payload for hash and downloads it.
func (f *fixture) serve(t *testing.T, hash string, payload []byte) *types.LocalPackage {
	t.Helper()
	f.fetcher.payloads["https://cdn.test/"+hash] = payload
	pkg, err := f.store.DownloadPackage(context.Background(), remoteFor(hash), nil)
	if err != nil {
		t.Fatalf("DownloadPackage(%s) error = %v", hash, err)
	}
	return pkg
}

func (f *fixture) install(t *testing.T, hash string, files map[string]string) {
	t.Helper()
	f.serve(t, hash, zipBytes(t, files))
	if err := f.store.InstallPackage(context.Background(), hash, false); err != nil {
		t.Fatalf("InstallPackage(%s) error = %v", hash, err)
	}
}

// tree returns the content files of a package folder, without app.json.
func (f *fixture) tree(t *testing.T, hash string) map[string]string {
	t.Helper()
	root := f.store.PackageFolderPath(hash)
	got := map[string]string{}
	err := afero.Walk(f.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		if rel == PackageFileName {
			return nil
		}
		data, err := afero.ReadFile(f.fs, path)
		got[filepath.ToSlash(rel)] = string(data)
		return err
	})
	if err != nil {
		t.Fatalf("walk %s: %v", root, err)
	}
	return got
}

func (f *fixture) info(t *testing.T) types.PackageInfo {
	t.Helper()
	info, err := f.store.PackageInfo(context.Background())
	if err != nil {
		t.Fatalf("PackageInfo() error = %v", err)
	}
	return *info
}

func (f *fixture) exists(t *testing.T, hash string) bool {
	t.Helper()
	ok, err := afero.DirExists(f.fs, f.store.PackageFolderPath(hash))
	if err != nil {
		t.Fatal(err)
	}
	return ok
}

func TestDownloadPackage_Archive(t *testing.T) {
	tests := []struct {
		name      string
		files     map[string]string
		wantEntry string
	}{
		{"root entry point", map[string]string{"index.bundle": "v1", "assets/a.png": "x"}, "index.bundle"},
		{"nested entry point", map[string]string{"CodePush/index.bundle": "v1", "CodePush/assets/a.png": "x"}, "CodePush/index.bundle"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			pkg := f.serve(t, "h1", zipBytes(t, tt.files))

			if pkg.EntryPoint != tt.wantEntry {
				t.Errorf("EntryPoint = %q, want %q", pkg.EntryPoint, tt.wantEntry)
			}
			if !pkg.IsPending || pkg.FailedInstall || pkg.PackageHash != "h1" {
				t.Errorf("package = %+v", pkg)
			}
			if diff := cmp.Diff(tt.files, f.tree(t, "h1")); diff != "" {
				t.Errorf("package tree mismatch (-want +got):\n%s", diff)
			}

			stored, err := f.store.Package("h1")
			if err != nil {
				t.Fatalf("Package() error = %v", err)
			}
			if diff := cmp.Diff(pkg, stored); diff != "" {
				t.Errorf("stored metadata mismatch (-want +got):\n%s", diff)
			}

			leftovers, _ := afero.Glob(f.fs, filepath.Join(f.store.Root(), downloadPattern))
			if len(leftovers) != 0 {
				t.Errorf("download files left behind: %v", leftovers)
			}
		})
	}
}

func TestDownloadPackage_SingleFile(t *testing.T) {
	f := newFixture(t)
	pkg := f.serve(t, "h1", []byte("console.log('hi')"))

	if pkg.EntryPoint != DefaultEntryPoint {
		t.Errorf("EntryPoint = %q, want %q", pkg.EntryPoint, DefaultEntryPoint)
	}
	want := map[string]string{DefaultEntryPoint: "console.log('hi')"}
	if diff := cmp.Diff(want, f.tree(t, "h1")); diff != "" {
		t.Errorf("package tree mismatch (-want +got):\n%s", diff)
	}
}

func TestDownloadPackage_DiffMergesAgainstCurrent(t *testing.T) {
	f := newFixture(t)
	base := map[string]string{"index.bundle": "1", "b": "2", "c": "3"}
	f.install(t, "h1", base)

	f.serve(t, "h2", zipBytes(t, map[string]string{
		"hotcodepush.json": `{"deletedFiles":["b"]}`,
		"c":                "4",
		"d":                "5",
	}))

	want := map[string]string{"index.bundle": "1", "c": "4", "d": "5"}
	if diff := cmp.Diff(want, f.tree(t, "h2")); diff != "" {
		t.Errorf("merged tree mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(base, f.tree(t, "h1")); diff != "" {
		t.Errorf("baseline was modified (-want +got):\n%s", diff)
	}

	pkg, err := f.store.Package("h2")
	if err != nil {
		t.Fatal(err)
	}
	if pkg.PackageHash != "h2" || pkg.Label != "v-h2" {
		t.Errorf("merged package metadata = %+v", pkg)
	}
}

func TestDownloadPackage_Failures(t *testing.T) {
	tests := []struct {
		name       string
		payload    []byte
		fetchErr   error
		wantKind   errs.Kind
		wantFailed bool
	}{
		{"fetch error", nil, errors.New("connection reset"), errs.DownloadFailed, true},
		{"missing entry point", zipBytes(t, map[string]string{"other.js": "x"}), nil, errs.MergeFailed, true},
		{"escaping manifest", zipBytes(t, map[string]string{
			"hotcodepush.json": `{"deletedFiles":["../../etc"]}`,
			"index.bundle":     "x",
		}), nil, errs.MergeFailed, true},
		{"canceled", nil, context.Canceled, errs.Canceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.fetcher.err = tt.fetchErr
			if tt.payload != nil {
				f.fetcher.payloads["https://cdn.test/h1"] = tt.payload
			}

			_, err := f.store.DownloadPackage(context.Background(), remoteFor("h1"), nil)
			if !errs.Is(err, tt.wantKind) {
				t.Fatalf("DownloadPackage() error = %v, want kind %v", err, tt.wantKind)
			}
			if f.exists(t, "h1") {
				t.Error("package folder left behind after failure")
			}

			failed, err := f.settings.ExistsFailedUpdate(context.Background(), "h1")
			if err != nil {
				t.Fatal(err)
			}
			if failed != tt.wantFailed {
				t.Errorf("ExistsFailedUpdate() = %v, want %v", failed, tt.wantFailed)
			}
		})
	}
}

func TestDownloadPackage_InvalidParameters(t *testing.T) {
	f := newFixture(t)
	f.install(t, "h1", map[string]string{"index.bundle": "1"})

	redirect := &types.RemotePackage{Descriptor: types.Descriptor{AppVersion: "2.0.0"}, UpdateAppVersion: true}
	noURL := remoteFor("h2")
	noURL.DownloadURL = ""

	for name, remote := range map[string]*types.RemotePackage{
		"nil":             nil,
		"binary redirect": redirect,
		"no url":          noURL,
		"current hash":    remoteFor("h1"),
	} {
		if _, err := f.store.DownloadPackage(context.Background(), remote, nil); !errs.Is(err, errs.InvalidParameter) {
			t.Errorf("%s: error = %v, want InvalidParameter", name, err)
		}
	}
	if !f.exists(t, "h1") {
		t.Error("current package removed by rejected download")
	}
}

func TestDownloadPackage_PreviousFolderSurvivesFailedDownload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.install(t, "h1", map[string]string{"index.bundle": "1", "img/a.png": "a"})
	f.install(t, "h2", map[string]string{"index.bundle": "2"})
	delete(f.fetcher.payloads, "https://cdn.test/h1")

	pkg, err := f.store.DownloadPackage(ctx, remoteFor("h1"), nil)
	if err != nil {
		t.Fatalf("DownloadPackage(previous) error = %v", err)
	}
	if pkg.PackageHash != "h1" || !pkg.IsPending || pkg.EntryPoint != "index.bundle" {
		t.Errorf("DownloadPackage(previous) = %+v", pkg)
	}
	want := map[string]string{"index.bundle": "1", "img/a.png": "a"}
	if diff := cmp.Diff(want, f.tree(t, "h1")); diff != "" {
		t.Errorf("previous folder changed (-want +got):\n%s", diff)
	}
	if failed, _ := f.settings.FailedUpdates(ctx); len(failed) != 0 {
		t.Errorf("FailedUpdates() = %+v, want none", failed)
	}

	if err := f.store.RollbackPackage(ctx); err != nil {
		t.Fatalf("RollbackPackage() error = %v", err)
	}
	current, err := f.store.CurrentPackage(ctx)
	if err != nil || current == nil || current.PackageHash != "h1" {
		t.Errorf("CurrentPackage() after rollback = %+v, %v", current, err)
	}
}

func TestDownloadPackage_BrokenPreviousFolderIsDownloadedAgain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.install(t, "h1", map[string]string{"index.bundle": "1"})
	f.install(t, "h2", map[string]string{"index.bundle": "2"})
	if err := f.fs.Remove(filepath.Join(f.store.PackageFolderPath("h1"), "index.bundle")); err != nil {
		t.Fatal(err)
	}
	f.fetcher.payloads["https://cdn.test/h1"] = zipBytes(t, map[string]string{"index.bundle": "1b"})

	if _, err := f.store.DownloadPackage(ctx, remoteFor("h1"), nil); err != nil {
		t.Fatalf("DownloadPackage() error = %v", err)
	}
	if diff := cmp.Diff(map[string]string{"index.bundle": "1b"}, f.tree(t, "h1")); diff != "" {
		t.Errorf("h1 tree mismatch (-want +got):\n%s", diff)
	}
}

func TestInstallPackage_RotatesPrevious(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.install(t, "h1", map[string]string{"index.bundle": "1"})
	if got := f.info(t); got != (types.PackageInfo{CurrentPackage: "h1"}) {
		t.Fatalf("after h1: %+v", got)
	}

	f.install(t, "h2", map[string]string{"index.bundle": "2"})
	if got := f.info(t); got != (types.PackageInfo{CurrentPackage: "h2", PreviousPackage: "h1"}) {
		t.Fatalf("after h2: %+v", got)
	}

	f.install(t, "h3", map[string]string{"index.bundle": "3"})
	if got := f.info(t); got != (types.PackageInfo{CurrentPackage: "h3", PreviousPackage: "h2"}) {
		t.Fatalf("after h3: %+v", got)
	}
	if f.exists(t, "h1") {
		t.Error("h1 folder should have been deleted")
	}
	if !f.exists(t, "h2") || !f.exists(t, "h3") {
		t.Error("current and previous folders must exist")
	}

	pending, err := f.settings.PendingUpdate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if pending == nil || *pending != (types.PendingUpdate{Hash: "h3"}) {
		t.Errorf("PendingUpdate() = %+v, want h3 not loading", pending)
	}
}

func TestInstallPackage_CurrentIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.install(t, "h1", map[string]string{"index.bundle": "1"})
	f.install(t, "h2", map[string]string{"index.bundle": "2"})
	if err := f.settings.RemovePendingUpdate(ctx); err != nil {
		t.Fatal(err)
	}
	before := f.info(t)

	if err := f.store.InstallPackage(ctx, "h2", false); err != nil {
		t.Fatalf("InstallPackage() error = %v", err)
	}
	if got := f.info(t); got != before {
		t.Errorf("info changed: %+v -> %+v", before, got)
	}
	if !f.exists(t, "h1") {
		t.Error("previous package removed by no-op install")
	}
	if pending, _ := f.settings.PendingUpdate(ctx); pending != nil {
		t.Errorf("no-op install recorded pending update %+v", pending)
	}
}

func TestInstallPackage_RemoveCurrent(t *testing.T) {
	f := newFixture(t)

	f.install(t, "h1", map[string]string{"index.bundle": "1"})
	f.install(t, "h2", map[string]string{"index.bundle": "2"})
	f.serve(t, "h3", zipBytes(t, map[string]string{"index.bundle": "3"}))

	if err := f.store.InstallPackage(context.Background(), "h3", true); err != nil {
		t.Fatalf("InstallPackage() error = %v", err)
	}
	if got := f.info(t); got != (types.PackageInfo{CurrentPackage: "h3", PreviousPackage: "h1"}) {
		t.Errorf("info = %+v", got)
	}
	if f.exists(t, "h2") {
		t.Error("replaced current folder should be deleted")
	}
	if !f.exists(t, "h1") {
		t.Error("previous folder should be kept")
	}
}

func TestInstallPackage_MissingPackage(t *testing.T) {
	f := newFixture(t)
	f.install(t, "h1", map[string]string{"index.bundle": "1"})

	err := f.store.InstallPackage(context.Background(), "nope", false)
	if !errs.Is(err, errs.InstallFailed) {
		t.Fatalf("error = %v, want InstallFailed", err)
	}
	if got := f.info(t); got != (types.PackageInfo{CurrentPackage: "h1"}) {
		t.Errorf("info changed by failed install: %+v", got)
	}

	if err := f.store.InstallPackage(context.Background(), "", false); !errs.Is(err, errs.InvalidParameter) {
		t.Errorf("empty hash error = %v, want InvalidParameter", err)
	}
}

func TestRollbackPackage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.store.RollbackPackage(ctx); err != nil {
		t.Fatalf("RollbackPackage() with nothing installed error = %v", err)
	}

	f.install(t, "h1", map[string]string{"index.bundle": "1"})
	f.install(t, "h2", map[string]string{"index.bundle": "2"})

	if err := f.store.RollbackPackage(ctx); err != nil {
		t.Fatalf("RollbackPackage() error = %v", err)
	}
	if got := f.info(t); got != (types.PackageInfo{CurrentPackage: "h1"}) {
		t.Errorf("info = %+v, want current h1 and no previous", got)
	}
	if f.exists(t, "h2") {
		t.Error("rolled back folder should be deleted")
	}

	failed, err := f.settings.FailedUpdates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 || failed[0].PackageHash != "h2" || !failed[0].FailedInstall {
		t.Errorf("FailedUpdates() = %+v", failed)
	}
	if pending, _ := f.settings.PendingUpdate(ctx); pending != nil {
		t.Errorf("pending update not cleared: %+v", pending)
	}

	current, err := f.store.CurrentPackage(ctx)
	if err != nil || current == nil || current.PackageHash != "h1" {
		t.Errorf("CurrentPackage() = %+v, %v", current, err)
	}
}

func TestRollbackPackage_OnlyPackage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.install(t, "h1", map[string]string{"index.bundle": "1"})

	if err := f.store.RollbackPackage(ctx); err != nil {
		t.Fatalf("RollbackPackage() error = %v", err)
	}
	if got := f.info(t); got != (types.PackageInfo{}) {
		t.Errorf("info = %+v, want empty", got)
	}
	current, err := f.store.CurrentPackage(ctx)
	if err != nil || current != nil {
		t.Errorf("CurrentPackage() = %+v, %v; want nil", current, err)
	}
}

func TestPackageInfo_Corrupted(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(f.store.Root(), StatusFileName)
	if err := afero.WriteFile(f.fs, path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := f.store.PackageInfo(context.Background()); !errs.Is(err, errs.StoreCorrupted) {
		t.Errorf("PackageInfo() error = %v, want StoreCorrupted", err)
	}
	if err := f.store.InstallPackage(context.Background(), "h1", false); !errs.Is(err, errs.InstallFailed) {
		t.Errorf("InstallPackage() error = %v, want InstallFailed", err)
	}
}

func TestPrune(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.install(t, "h1", map[string]string{"index.bundle": "1"})
	f.install(t, "h2", map[string]string{"index.bundle": "2"})
	f.serve(t, "h3", zipBytes(t, map[string]string{"index.bundle": "3"}))
	f.serve(t, "h4", zipBytes(t, map[string]string{"index.bundle": "4"}))

	// h3 predates the last install, h4 is waiting to be installed
	installed := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	touch := map[string]time.Time{
		filepath.Join(f.store.Root(), StatusFileName):                   installed,
		filepath.Join(f.store.PackageFolderPath("h3"), PackageFileName): installed.Add(-time.Hour),
		filepath.Join(f.store.PackageFolderPath("h4"), PackageFileName): installed.Add(time.Hour),
	}
	for path, mtime := range touch {
		if err := f.fs.Chtimes(path, mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}

	for _, name := range []string{"download-123.tmp", "codepush.json.456.tmp", "notes.txt"} {
		if err := afero.WriteFile(f.fs, filepath.Join(f.store.Root(), name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	dry, err := f.store.Prune(ctx, true)
	if err != nil {
		t.Fatalf("Prune(dryRun) error = %v", err)
	}
	wantDeleted := []string{"codepush.json.456.tmp", "download-123.tmp", "h3"}
	if diff := cmp.Diff(wantDeleted, dry.Deleted); diff != "" {
		t.Errorf("dry run deleted mismatch (-want +got):\n%s", diff)
	}
	if !f.exists(t, "h3") {
		t.Fatal("dry run removed h3")
	}

	res, err := f.store.Prune(ctx, false)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if diff := cmp.Diff(wantDeleted, res.Deleted); diff != "" {
		t.Errorf("deleted mismatch (-want +got):\n%s", diff)
	}
	if res.Kept != 3 {
		t.Errorf("Kept = %d, want 3", res.Kept)
	}
	if f.exists(t, "h3") || !f.exists(t, "h1") || !f.exists(t, "h2") || !f.exists(t, "h4") {
		t.Error("prune removed the wrong folders")
	}
	if err := f.store.InstallPackage(ctx, "h4", false); err != nil {
		t.Errorf("InstallPackage(h4) after prune error = %v", err)
	}
	if ok, _ := afero.Exists(f.fs, filepath.Join(f.store.Root(), "notes.txt")); !ok {
		t.Error("unrelated file removed")
	}
}

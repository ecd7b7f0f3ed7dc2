// Copyright 2024 The Substrate Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package plugin implements the plug-in lifecycle on top of the storage
// substrate (spec §4.5): install, load, unload and unload_all, built
// around a RootStorage whose mount table holds one entry per plug-in
// plus the writable memory overlay that records live instances.
package plugin

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rapidcontext/substrate/log"
	"github.com/rapidcontext/substrate/normalize"
	fspath "github.com/rapidcontext/substrate/path"
	"github.com/rapidcontext/substrate/plugin/config"
	"github.com/rapidcontext/substrate/store"
	dirstore "github.com/rapidcontext/substrate/store/dir"
	"github.com/rapidcontext/substrate/store/memory"
	"github.com/rapidcontext/substrate/store/root"
	"github.com/rapidcontext/substrate/store/zip"
	"github.com/rapidcontext/substrate/value"
)

// Reserved plug-in identifiers (spec §4.5): neither may be installed,
// force-loaded or unloaded by users.
const (
	SystemID = "system"
	LocalID  = "local"
)

// systemPriority and userPriority are the overlay priorities assigned to
// the reserved system plug-in and to every other attached plug-in,
// including local (spec §4.5 "Overlay priority policy").
const (
	systemPriority = 0
	userPriority   = 100
	memoryPriority = 50
)

// Instance is a live plug-in object: the thing a Constructor produces and
// load/unload drive through its lifecycle.
type Instance interface {
	Init(cfg *value.Dict) error
	Destroy() error
}

// Constructor builds an Instance from a plug-in's parsed config.
type Constructor func(cfg *value.Dict) (Instance, error)

// CodeLoader resolves a fully qualified constructor name to a
// Constructor, given a directory of code artifacts copied out of the
// plug-in's /lib/ subtree (spec §4.5, §9 "Dynamic class/module loading").
// Implementations may back this with dynamic libraries, interpreted
// scripts, or compiled scripts; the core only needs the contract.
type CodeLoader interface {
	Resolve(name string, artifactsDir string) (Constructor, error)
}

// defaultInstance is instantiated when a plug-in's config declares no
// className (spec §4.5 step 5 "else instantiate a default plug-in
// object").
type defaultInstance struct{}

func (defaultInstance) Init(*value.Dict) error { return nil }
func (defaultInstance) Destroy() error         { return nil }

// instanceRecord is the StorableObject written to
// /storage/memory/plugin/<id> so its presence can be queried through the
// ordinary storage API (spec §4.5 step 6, scenario 5).
type instanceRecord struct {
	ID        string
	ClassName string
}

func (r *instanceRecord) Store() value.Value {
	d := value.NewDict()
	d.Set("id", value.Str(r.ID))
	if r.ClassName != "" {
		d.Set("className", value.Str(r.ClassName))
	}
	return value.FromDict(d)
}

// Manager owns the plug-in lifecycle: it mounts every installed plug-in's
// content into a RootStorage, attaches/detaches overlays on load/unload,
// and drives CodeLoader-resolved instances through init/destroy (spec
// §4.5).
type Manager struct {
	mu sync.Mutex

	builtinDir      string
	pluginDir       string
	platformVersion string

	root       *root.RootStorage
	memStore   *memory.Store
	codeLoader CodeLoader
	logger     log.Logger
	metrics    *managerMetrics

	instances map[string]Instance
	tempDir   string
	tempFiles []string
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithLogger overrides the default global logger.
func WithLogger(l log.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithCodeLoader installs the collaborator used to resolve className to
// a Constructor. Plug-ins that declare no className never need one.
func WithCodeLoader(cl CodeLoader) Option {
	return func(m *Manager) { m.codeLoader = cl }
}

// New builds a Manager backed by a fresh RootStorage: a writable
// MemoryStore at /storage/memory/, overlayed at priority 50, the reserved
// system plug-in attached if present under builtinDir, and the reserved
// local plug-in attached from pluginDir/local, which is created if
// missing (spec §4.5).
//
// The memory overlay's ReadWrite flag makes it the RootStorage
// invariant's sole writable overlay (spec §3). local's backing DirStore
// is read-only and its mount is not ReadWrite, so writes addressed
// directly under /storage/plugin/local/ fail with ErrNotWritable.
func New(builtinDir, pluginDir, platformVersion string, opts ...Option) (*Manager, error) {
	rs, err := root.New()
	if err != nil {
		return nil, err
	}

	m := &Manager{
		builtinDir:      builtinDir,
		pluginDir:       pluginDir,
		platformVersion: platformVersion,
		root:            rs,
		logger:          log.Global(),
		instances:       map[string]Instance{},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.metrics = newManagerMetrics(nil)

	mem := memory.New("memory")
	m.memStore = mem
	memRoot := fspath.Root()
	if _, err := rs.Mount(mem, fspath.Parse("/storage/memory/"), true, &memRoot, memoryPriority, "memory"); err != nil {
		return nil, err
	}

	tempDir, err := os.MkdirTemp("", "substrate-plugin-")
	if err != nil {
		return nil, store.IOErrorf(err, "creating plugin temp dir")
	}
	m.tempDir = tempDir

	if err := os.MkdirAll(pluginDir, 0o755); err != nil {
		return nil, store.IOErrorf(err, "creating plugin dir %q", pluginDir)
	}

	if err := m.mountBundle(SystemID, filepath.Join(builtinDir, SystemID), false); err == nil {
		sysOverlayRoot := fspath.Root()
		if err := rs.Remount(fspath.Parse("/storage/plugin/"+SystemID+"/"), false, &sysOverlayRoot, systemPriority); err != nil {
			m.logger.WithField("plugin", SystemID).Warnf("failed to attach system overlay: %v", err)
		}
	} else {
		m.logger.WithField("plugin", SystemID).Infof("system plug-in not present under %q: %v", builtinDir, err)
	}

	localDir := filepath.Join(pluginDir, LocalID)
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return nil, store.IOErrorf(err, "creating local plugin dir %q", localDir)
	}
	// local's backing store is mounted non-writable: the RootStorage
	// invariant allows only one writable overlay, and that role belongs
	// to the memory store mounted above (spec §4.5, §9 "writable overlay"
	// open question). Direct writes under /storage/plugin/local/ are
	// consequently rejected with ErrNotWritable.
	if err := m.mountBundle(LocalID, localDir, false); err != nil {
		return nil, err
	}
	localOverlayRoot := fspath.Root()
	if err := rs.Remount(fspath.Parse("/storage/plugin/"+LocalID+"/"), false, &localOverlayRoot, userPriority); err != nil {
		return nil, err
	}

	return m, nil
}

// Root exposes the underlying RootStorage for callers (HTTP/WebDAV
// handlers and similar) that address the unified namespace directly.
// Those consumers are out of this package's scope (spec §1).
func (m *Manager) Root() *root.RootStorage { return m.root }

func mountPath(id string) fspath.Path {
	return fspath.Parse("/storage/plugin/" + id + "/")
}

// mountBundle mounts a plug-in's content store at /storage/plugin/<id>/,
// non-overlay, wrapped in normalize.Store. writable marks whether the
// backing DirStore itself accepts direct writes; every caller in this
// package passes false.
func (m *Manager) mountBundle(id, dir string, writable bool) error {
	st, err := openBundleStore(id, dir, writable)
	if err != nil {
		return err
	}
	wrapped := normalize.New(st, id)
	_, err = m.root.Mount(wrapped, mountPath(id), writable, nil, 0, id)
	return err
}

func openBundleStore(id, bundlePath string, writable bool) (store.Store, error) {
	if info, err := os.Stat(bundlePath); err == nil && info.IsDir() {
		opts := []dirstore.Option{}
		if !writable {
			opts = append(opts, dirstore.ReadOnly())
		}
		return dirstore.New(id, bundlePath, opts...)
	}
	archivePath := bundlePath
	if filepath.Ext(archivePath) != ".zip" {
		archivePath += ".zip"
	}
	if _, err := os.Stat(archivePath); err != nil {
		return nil, store.NotFoundf("no plug-in bundle at %q or %q", bundlePath, archivePath)
	}
	return zip.New(id, archivePath, id)
}

// Install implements spec §4.5 "install": opens archivePath as a ZIP,
// validates its plugin config, and replaces the plug-in's persisted
// bundle under pluginDir.
func (m *Manager) Install(archivePath string) (string, error) {
	zs, err := zip.New("install", archivePath, "")
	if err != nil {
		return "", err
	}

	cfg, err := m.loadBundleConfig(zs)
	if err != nil {
		return "", err
	}
	id, err := config.ID(cfg)
	if err != nil {
		return "", err
	}
	if id == SystemID || id == LocalID {
		return "", store.ValidationErrorf("cannot install reserved plug-in id %q", id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isLoadedLocked(id) {
		if err := m.unloadLocked(id); err != nil {
			return "", err
		}
	}
	if _, mounted := m.findMount(id); mounted {
		if err := m.root.Unmount(mountPath(id)); err != nil && !store.IsConflict(err) {
			return "", err
		}
	}

	dest := filepath.Join(m.pluginDir, id+".zip")
	if err := copyFile(archivePath, dest); err != nil {
		return "", store.IOErrorf(err, "installing plug-in %q", id)
	}
	if err := m.mountBundle(id, dest, false); err != nil {
		return "", err
	}
	m.metrics.installs.Inc()
	return id, nil
}

func (m *Manager) loadBundleConfig(st store.Store) (*value.Dict, error) {
	ctx := context.Background()
	if v, ok, err := st.Load(ctx, fspath.Parse("/plugin")); err == nil && ok {
		if d, ok := v.Dict(); ok {
			return d, nil
		}
	}
	v, ok, err := st.Load(ctx, fspath.Parse("/plugin/"))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, store.FormatErrorf(nil, "bundle has no /plugin config")
	}
	d, ok := v.Dict()
	if !ok {
		return nil, store.FormatErrorf(nil, "bundle has no /plugin config")
	}
	objs := store.IndexNames(d, store.ObjectsKey)
	if len(objs) != 1 {
		return nil, store.FormatErrorf(nil, "bundle must publish exactly one /plugin/<id> config, found %d", len(objs))
	}
	v, ok, err = st.Load(ctx, fspath.Parse("/plugin/"+objs[0]))
	if err != nil || !ok {
		return nil, store.FormatErrorf(err, "reading /plugin/%s", objs[0])
	}
	d, ok = v.Dict()
	if !ok {
		return nil, store.FormatErrorf(nil, "/plugin/%s is not an object", objs[0])
	}
	return d, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

func (m *Manager) findMount(id string) (root.Mount, bool) {
	mp := mountPath(id)
	for _, mnt := range m.root.Mounts() {
		if mnt.MountPath.Equal(mp) {
			return mnt, true
		}
	}
	return root.Mount{}, false
}

func (m *Manager) isLoadedLocked(id string) bool {
	_, ok := m.instances[id]
	return ok
}

// IsAvailable reports whether a plug-in id is mounted (installed or
// built-in), regardless of load state.
func (m *Manager) IsAvailable(id string) bool {
	_, ok := m.findMount(id)
	return ok
}

// IsLoaded reports whether a plug-in id currently has a live instance.
func (m *Manager) IsLoaded(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isLoadedLocked(id)
}

// Load implements spec §4.5 "load": attaches the plug-in's overlay,
// discovers and resolves code artifacts under /lib/, instantiates and
// initializes the plug-in object, and records it at
// /storage/memory/plugin/<id>.
func (m *Manager) Load(id string) error {
	if id == SystemID || id == LocalID {
		return store.ValidationErrorf("cannot load reserved plug-in %q", id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked(id)
}

func (m *Manager) loadLocked(id string) error {
	ctx := context.Background()
	mp := mountPath(id)
	if _, ok := m.findMount(id); !ok {
		return store.ValidationErrorf("plug-in %q is not installed", id)
	}

	cfg, err := m.loadPluginConfig(ctx, id)
	if err != nil {
		return err
	}
	if !m.platformVersionMatches(cfg) {
		m.logger.WithField("plugin", id).Debugf("plug-in targets a different platform version, loading as legacy")
	}

	overlayRoot := fspath.Root()
	if err := m.root.Remount(mp, false, &overlayRoot, userPriority); err != nil {
		return err
	}
	rollback := func() {
		_ = m.root.Remount(mp, false, nil, 0)
	}

	artifactsDir := filepath.Join(m.tempDir, id)
	if err := os.MkdirAll(artifactsDir, 0o755); err != nil {
		rollback()
		return store.IOErrorf(err, "creating artifacts dir for %q", id)
	}

	libPrefix := mp.Descendant(fspath.Parse("lib/"))
	for p, v := range m.root.LoadAll(ctx, libPrefix) {
		if p.IsIndex() {
			continue
		}
		bin, ok := v.Binary()
		if !ok {
			continue
		}
		tmpFile, err := m.copyArtifact(artifactsDir, id, p.Name(), bin)
		if err != nil {
			rollback()
			m.cleanupArtifacts(artifactsDir)
			return err
		}
		m.tempFiles = append(m.tempFiles, tmpFile)
	}

	className, _ := cfg.GetOr("className", value.Null()).Str()
	var inst Instance
	if className != "" {
		if m.codeLoader == nil {
			rollback()
			m.cleanupArtifacts(artifactsDir)
			return store.CodeLoadErrorf(className, errNoCodeLoader)
		}
		ctor, err := m.codeLoader.Resolve(className, artifactsDir)
		if err != nil {
			rollback()
			m.cleanupArtifacts(artifactsDir)
			return store.CodeLoadErrorf(className, err)
		}
		inst, err = ctor(cfg)
		if err != nil {
			rollback()
			m.cleanupArtifacts(artifactsDir)
			return store.CodeLoadErrorf(className, err)
		}
	} else {
		inst = defaultInstance{}
	}

	if err := inst.Init(cfg); err != nil {
		rollback()
		m.cleanupArtifacts(artifactsDir)
		return store.InitErrorf(err, "plug-in %q init", id)
	}

	record := &instanceRecord{ID: id, ClassName: className}
	instPath := fspath.Parse("/storage/memory/plugin/" + id)
	if err := m.root.Store(ctx, instPath, value.FromObject(record)); err != nil {
		_ = inst.Destroy()
		rollback()
		m.cleanupArtifacts(artifactsDir)
		return err
	}

	m.instances[id] = inst
	m.metrics.loads.Inc()
	return nil
}

var errNoCodeLoader = store.ValidationErrorf("no CodeLoader configured")

func (m *Manager) loadPluginConfig(ctx context.Context, id string) (*value.Dict, error) {
	p := fspath.Parse("/storage/plugin/" + id + "/plugin")
	if v, ok, err := m.root.Load(ctx, p); err == nil && ok {
		if d, ok := v.Dict(); ok {
			return d, nil
		}
	}
	p = fspath.Parse("/storage/plugin/" + id + "/plugin/" + id)
	v, ok, err := m.root.Load(ctx, p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, store.ValidationErrorf("plug-in %q has no config", id)
	}
	d, ok := v.Dict()
	if !ok {
		return nil, store.ValidationErrorf("plug-in %q config is not an object", id)
	}
	return d, nil
}

func (m *Manager) copyArtifact(artifactsDir, id, name string, bin *value.Binary) (string, error) {
	rc, err := bin.Open()
	if err != nil {
		return "", store.IOErrorf(err, "opening artifact %q for %q", name, id)
	}
	defer rc.Close()
	dst := filepath.Join(artifactsDir, filepath.Base(name))
	f, err := os.Create(dst)
	if err != nil {
		return "", store.IOErrorf(err, "creating artifact %q for %q", name, id)
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		return "", store.IOErrorf(err, "copying artifact %q for %q", name, id)
	}
	if err := f.Close(); err != nil {
		return "", store.IOErrorf(err, "closing artifact %q for %q", name, id)
	}
	return dst, nil
}

func (m *Manager) cleanupArtifacts(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		m.logger.Warnf("plugin: failed to clean up artifacts dir %q: %v", dir, err)
	}
}

// Unload implements spec §4.5 "unload": destroys the instance, removes
// its memory record, and detaches the overlay.
func (m *Manager) Unload(id string) error {
	if id == SystemID || id == LocalID {
		return store.ValidationErrorf("cannot unload reserved plug-in %q", id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unloadLocked(id)
}

func (m *Manager) unloadLocked(id string) error {
	ctx := context.Background()
	if inst, ok := m.instances[id]; ok {
		if err := inst.Destroy(); err != nil {
			m.logger.WithField("plugin", id).Warnf("destroy failed: %v", err)
		}
		delete(m.instances, id)
		instPath := fspath.Parse("/storage/memory/plugin/" + id)
		if err := m.root.Remove(ctx, instPath); err != nil && !store.IsNotFound(err) {
			m.logger.WithField("plugin", id).Warnf("failed to remove instance record: %v", err)
		}
	}
	mp := mountPath(id)
	if err := m.root.Remount(mp, false, nil, 0); err != nil {
		return err
	}
	m.metrics.unloads.Inc()
	return nil
}

// UnloadAll implements spec §4.5 "unload_all": best-effort unload of
// every loaded plug-in, then resets the code loader and removes every
// tracked temp file (spec §7: "per-plug-in errors are logged, traversal
// continues").
func (m *Manager) UnloadAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.instances))
	for id := range m.instances {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	g := new(errgroup.Group)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := m.Unload(id); err != nil {
				m.logger.WithField("plugin", id).Warnf("unload_all: unload failed: %v", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	if resettable, ok := m.codeLoader.(interface{ Reset() }); ok {
		resettable.Reset()
	}
	for _, f := range m.tempFiles {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			m.logger.Warnf("plugin: failed to remove temp file %q: %v", f, err)
		}
	}
	m.tempFiles = nil
}

// Close releases the manager's temp directory and underlying storage
// resources. Call after UnloadAll on shutdown.
func (m *Manager) Close() error {
	if err := os.RemoveAll(m.tempDir); err != nil {
		m.logger.Warnf("plugin: failed to remove temp dir %q: %v", m.tempDir, err)
	}
	return m.root.Close()
}

// platformVersionMatches reports whether a plug-in's config targets the
// host's platform version (spec §9 "version check semantics").
func (m *Manager) platformVersionMatches(cfg *value.Dict) bool {
	return !config.IsLegacy(cfg, m.platformVersion)
}

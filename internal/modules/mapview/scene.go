package mapview

import (
	"context"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"delitrack/internal/types"
)

// SceneSDK renders maps into GeoJSON feature collections instead of a
// browser canvas. The server streams scenes and the browser only draws them.
type SceneSDK struct {
	// OnChange receives a fresh snapshot after every mutation.
	OnChange func(containerID string, scene *geojson.FeatureCollection)
}

func (s *SceneSDK) NewMap(_ context.Context, containerID string, center types.Point, zoom int) (Map, error) {
	loaded := make(chan struct{})
	close(loaded)
	m := &SceneMap{
		sdk:       s,
		container: containerID,
		center:    center,
		zoom:      zoom,
		loaded:    loaded,
		features:  make(map[int]*geojson.Feature),
	}
	m.notify()
	return m, nil
}

// SceneMap is one map held as GeoJSON.
type SceneMap struct {
	sdk       *SceneSDK
	container string
	loaded    chan struct{}

	mu       sync.Mutex
	center   types.Point
	zoom     int
	bound    *orb.Bound
	padding  int
	nextID   int
	features map[int]*geojson.Feature
	removed  bool
	version  int
}

func (m *SceneMap) Loaded() <-chan struct{} { return m.loaded }

func (m *SceneMap) AddMarker(p types.Point, style MarkerStyle) (Element, error) {
	f := geojson.NewFeature(orb.Point{p.Lng, p.Lat})
	f.Properties["kind"] = style.Kind
	f.Properties["color"] = style.Color
	f.Properties["title"] = style.Title
	return m.add(f)
}

func (m *SceneMap) AddPolyline(points []types.Point, color string, weight int, opacity float64) (Element, error) {
	if len(points) < 2 {
		return nil, ErrTooFewPoints
	}
	ls := make(orb.LineString, 0, len(points))
	for _, p := range points {
		ls = append(ls, orb.Point{p.Lng, p.Lat})
	}
	f := geojson.NewFeature(ls)
	f.Properties["kind"] = "route"
	f.Properties["color"] = color
	f.Properties["weight"] = weight
	f.Properties["opacity"] = opacity
	return m.add(f)
}

func (m *SceneMap) add(f *geojson.Feature) (Element, error) {
	m.mu.Lock()
	if m.removed {
		m.mu.Unlock()
		return nil, ErrDestroyed
	}
	m.nextID++
	id := m.nextID
	f.ID = id
	m.features[id] = f
	m.mu.Unlock()

	m.notify()
	return &sceneElement{m: m, id: id}, nil
}

func (m *SceneMap) FitBounds(points []types.Point, padding int) error {
	mp := make(orb.MultiPoint, 0, len(points))
	for _, p := range points {
		mp = append(mp, orb.Point{p.Lng, p.Lat})
	}
	b := mp.Bound()

	m.mu.Lock()
	if m.removed {
		m.mu.Unlock()
		return ErrDestroyed
	}
	m.bound = &b
	m.padding = padding
	m.mu.Unlock()

	m.notify()
	return nil
}

func (m *SceneMap) Remove() error {
	m.mu.Lock()
	if m.removed {
		m.mu.Unlock()
		return nil
	}
	m.removed = true
	m.features = make(map[int]*geojson.Feature)
	m.mu.Unlock()

	m.notify()
	return nil
}

// Snapshot returns the current scene. Map state (center, zoom, padding,
// version) rides in foreign members; the fitted viewport is the bbox.
func (m *SceneMap) Snapshot() *geojson.FeatureCollection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *SceneMap) snapshotLocked() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	ids := make([]int, 0, len(m.features))
	for id := range m.features {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		fc.Append(m.features[id])
	}
	if m.bound != nil {
		fc.BBox = geojson.NewBBox(*m.bound)
	}
	fc.ExtraMembers = geojson.Properties{
		"container": m.container,
		"center":    []float64{m.center.Lng, m.center.Lat},
		"zoom":      m.zoom,
		"padding":   m.padding,
		"version":   m.version,
		"removed":   m.removed,
	}
	return fc
}

func (m *SceneMap) notify() {
	if m.sdk == nil || m.sdk.OnChange == nil {
		return
	}
	m.mu.Lock()
	m.version++
	fc := m.snapshotLocked()
	m.mu.Unlock()
	m.sdk.OnChange(m.container, fc)
}

type sceneElement struct {
	m  *SceneMap
	id int
}

func (e *sceneElement) Remove() error {
	e.m.mu.Lock()
	_, ok := e.m.features[e.id]
	delete(e.m.features, e.id)
	e.m.mu.Unlock()
	if ok {
		e.m.notify()
	}
	return nil
}

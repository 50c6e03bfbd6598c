package mapview

import (
	"context"
	"sync"

	"github.com/NoobML/ndvi-anomaly-detection/anomaly"
	"github.com/NoobML/ndvi-anomaly-detection/composite"
	"github.com/NoobML/ndvi-anomaly-detection/ee"
	"github.com/NoobML/ndvi-anomaly-detection/util"
)

// Mapper turns an image into a displayable layer
type Mapper interface {
	CreateMap(ctx context.Context, image ee.Image, vis ee.VisParams, label string) (*ee.MapLayer, error)
}

// Detector scores an uploaded month against the training stack
type Detector struct {
	Forest *anomaly.Forest
	Stack  *anomaly.Stack
}

// Context is the context for the map viewer
type Context struct {
	Mapper   Mapper
	Preview  *composite.Preview
	Detector *Detector

	layer      *layerCache
	logContext util.BasicLogContext
}

type layerCache struct {
	mu    sync.Mutex
	layer *ee.MapLayer
}

// NewContext creates a context that creates the preview layer on first use
func NewContext(mapper Mapper, preview *composite.Preview, detector *Detector) *Context {
	return &Context{Mapper: mapper, Preview: preview, Detector: detector, layer: &layerCache{}}
}

// AppName returns the application name
func (c *Context) AppName() string {
	return util.AppName
}

// SessionID returns a Session ID, creating one if needed
func (c *Context) SessionID() string {
	return c.logContext.SessionID()
}

// Layer returns the preview layer, creating it once. A failed attempt is
// retried on the next call.
func (c *Context) Layer(ctx context.Context) (*ee.MapLayer, error) {
	c.layer.mu.Lock()
	defer c.layer.mu.Unlock()
	if c.layer.layer != nil {
		return c.layer.layer, nil
	}
	layer, err := c.Mapper.CreateMap(ctx, c.Preview.Image, c.Preview.Vis, c.Preview.Label)
	if err != nil {
		return nil, err
	}
	c.layer.layer = layer
	return layer, nil
}

// LayerDescriptor is the JSON shape of a map layer
type LayerDescriptor struct {
	Label   string        `json:"label"`
	TileURL string        `json:"tileUrl,omitempty"`
	PNGURL  string        `json:"pngUrl,omitempty"`
	Bounds  [2][2]float64 `json:"bounds"`
	Center  [2]float64    `json:"center"`
	Zoom    int           `json:"zoom"`
	Min     float64       `json:"min"`
	Max     float64       `json:"max"`
	Palette []string      `json:"palette"`
}

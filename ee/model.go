package ee

import (
	"net/http"

	"github.com/NoobML/ndvi-anomaly-detection/model"
	"github.com/NoobML/ndvi-anomaly-detection/util"
)

// Earth Engine operation states
const (
	StatePending   = "PENDING"
	StateRunning   = "RUNNING"
	StateSucceeded = "SUCCEEDED"
	StateFailed    = "FAILED"
	StateCancelled = "CANCELLED"
)

// ExportRequest describes one image export. Region and Scale are applied to
// the image before it is handed to the engine.
type ExportRequest struct {
	Image       Image
	Description string
	Region      model.Region
	Scale       float64
	FileFormat  model.FileFormat
	MaxPixels   int64
	Folder      string
	RequestID   string
}

// PreparedImage is the image an engine actually exports
func (r ExportRequest) PreparedImage() Image {
	return r.Image.ClipToBoundsAndScale(Rectangle(r.Region), r.Scale)
}

// Operation is a long-running export as reported by an engine
type Operation struct {
	Name     string             `json:"name"`
	Done     bool               `json:"done,omitempty"`
	Metadata *OperationMetadata `json:"metadata,omitempty"`
	Error    *Status            `json:"error,omitempty"`
}

// OperationMetadata describes progress of an export
type OperationMetadata struct {
	Type            string   `json:"@type,omitempty"`
	State           string   `json:"state,omitempty"`
	Description     string   `json:"description,omitempty"`
	CreateTime      string   `json:"createTime,omitempty"`
	UpdateTime      string   `json:"updateTime,omitempty"`
	StartTime       string   `json:"startTime,omitempty"`
	EndTime         string   `json:"endTime,omitempty"`
	Progress        float64  `json:"progress,omitempty"`
	DestinationURIs []string `json:"destinationUris,omitempty"`
	NoData          bool     `json:"noData,omitempty"`
}

// Status is an operation error
type Status struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Status converts an operation to the model's status mixin
func (op Operation) Status() model.OperationStatus {
	status := model.OperationStatus{Done: op.Done}
	if op.Metadata != nil {
		status.State = op.Metadata.State
		status.NoData = op.Metadata.NoData
	}
	if op.Error != nil {
		status.Error = op.Error.Message
	}
	return status
}

// MapLayer is a renderable layer: either a tile template served by the
// remote engine or a single PNG overlay covering Bounds
type MapLayer struct {
	Name    string
	Label   string
	TileURL string
	Bounds  model.Region
	PNG     []byte
}

type exportImageRequest struct {
	Expression        *Expression       `json:"expression"`
	Description       string            `json:"description,omitempty"`
	FileExportOptions fileExportOptions `json:"fileExportOptions"`
	MaxPixels         int64             `json:"maxPixels,string,omitempty"`
	RequestID         string            `json:"requestId,omitempty"`
}

type fileExportOptions struct {
	FileFormat       string           `json:"fileFormat"`
	DriveDestination driveDestination `json:"driveDestination"`
}

type driveDestination struct {
	Folder         string `json:"folder,omitempty"`
	FilenamePrefix string `json:"filenamePrefix"`
}

type createMapRequest struct {
	Expression *Expression `json:"expression"`
	FileFormat string      `json:"fileFormat"`
}

type eeMap struct {
	Name string `json:"name"`
}

type listOperationsResponse struct {
	Operations    []Operation `json:"operations"`
	NextPageToken string      `json:"nextPageToken"`
}

type errorResponse struct {
	Error Status `json:"error"`
}

var wireFileFormats = map[model.FileFormat]string{
	model.GeoTIFF: "GEO_TIFF",
}

// Client submits work to the Earth Engine REST API. It implements
// util.LogContext.
type Client struct {
	BaseURL    string
	Project    string
	HTTPClient *http.Client

	logContext util.BasicLogContext
}

// AppName returns the application name
func (c *Client) AppName() string {
	return util.AppName
}

// SessionID returns a Session ID, creating one if needed
func (c *Client) SessionID() string {
	return c.logContext.SessionID()
}

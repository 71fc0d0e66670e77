package detectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/nvr-ai/leafscan/images"
	"github.com/nvr-ai/leafscan/models"
)

// Remote delegates segmentation to an external inference service.
//
// The image is uploaded as a multipart "file" field (JPEG). The service
// answers with instances carrying a class label, a confidence and either a
// polygon outline or a COCO run-length mask.
type Remote struct {
	url    string
	client *http.Client
}

// NewRemote creates a remote detector.
func NewRemote(cfg RemoteConfig) (*Remote, error) {
	if cfg.URL == "" {
		return nil, errors.New("inference url is required")
	}
	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return nil, errors.Wrapf(err, "invalid inference url %q", cfg.URL)
	}
	return &Remote{
		url:    cfg.URL,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type remoteResponse struct {
	Width      int              `json:"width"`
	Height     int              `json:"height"`
	Instances  []remoteInstance `json:"instances"`
	Detections []remoteInstance `json:"detections"`
}

type remoteInstance struct {
	Label      string       `json:"label"`
	Confidence float64      `json:"confidence"`
	Box        []float64    `json:"box"`
	Polygon    [][2]float64 `json:"polygon"`
	RLE        *RLE         `json:"rle"`
}

// RLE is an uncompressed COCO run-length mask: counts alternate between
// unset and set runs, starting with unset, over the pixels in column-major
// order.
type RLE struct {
	Size   [2]int `json:"size"` // height, width
	Counts []int  `json:"counts"`
}

// Decode expands the runs into a mask.
func (r RLE) Decode() (*images.Mask, error) {
	h, w := r.Size[0], r.Size[1]
	if h <= 0 || w <= 0 {
		return nil, fmt.Errorf("invalid rle size %v", r.Size)
	}
	m := images.NewMask(w, h)
	pos := 0
	set := false
	for _, run := range r.Counts {
		if run < 0 || pos+run > w*h {
			return nil, fmt.Errorf("rle runs exceed %dx%d", w, h)
		}
		if set {
			for i := pos; i < pos+run; i++ {
				m.Set(i/h, i%h, true)
			}
		}
		pos += run
		set = !set
	}
	return m, nil
}

// Detect uploads the image and decodes the returned instances. Cancelling
// ctx aborts the request.
func (r *Remote) Detect(ctx context.Context, img image.Image) ([]models.Instance, error) {
	b := img.Bounds()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image.jpg")
	if err != nil {
		return nil, errors.Wrap(err, "create form file")
	}
	if err := jpeg.Encode(part, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, errors.Wrap(err, "encode image")
	}
	if err := writer.Close(); err != nil {
		return nil, errors.Wrap(err, "close multipart writer")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, body)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrap(err, "send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Errorf("inference failed with status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var result remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}

	raw := result.Instances
	if raw == nil {
		raw = result.Detections
	}
	return decodeRemote(raw, result.Width, result.Height, b.Dx(), b.Dy())
}

// decodeRemote converts service instances to image-sized masks. Polygons
// are rescaled when the service reports a different frame size.
func decodeRemote(raw []remoteInstance, frameW, frameH, w, h int) ([]models.Instance, error) {
	sx, sy := 1.0, 1.0
	if frameW > 0 && frameH > 0 {
		sx = float64(w) / float64(frameW)
		sy = float64(h) / float64(frameH)
	}

	instances := make([]models.Instance, 0, len(raw))
	for i, ri := range raw {
		inst := models.Instance{
			Label:      models.LabelFor(ri.Label),
			ClassName:  ri.Label,
			Confidence: ri.Confidence,
		}

		switch {
		case len(ri.Polygon) > 0:
			inst.Polygon = make([]images.Point, len(ri.Polygon))
			for k, p := range ri.Polygon {
				inst.Polygon[k] = images.Point{X: p[0] * sx, Y: p[1] * sy}
			}
			inst.Mask = images.MaskFromPolygon(inst.Polygon, w, h)
		case ri.RLE != nil:
			m, err := ri.RLE.Decode()
			if err != nil {
				return nil, errors.Wrapf(err, "instance %d", i)
			}
			if m.Width() != w || m.Height() != h {
				return nil, errors.Errorf("instance %d: mask is %dx%d, image is %dx%d", i, m.Width(), m.Height(), w, h)
			}
			inst.Mask = m
		default:
			return nil, errors.Errorf("instance %d (%s) has neither polygon nor rle mask", i, ri.Label)
		}

		if len(ri.Box) == 4 {
			inst.Box = images.Rect{
				X1: int(ri.Box[0] * sx), Y1: int(ri.Box[1] * sy),
				X2: int(ri.Box[2]*sx + 0.999), Y2: int(ri.Box[3]*sy + 0.999),
			}.Clamp(w, h)
		} else {
			inst.Box = inst.Mask.Bounds()
		}
		instances = append(instances, inst)
	}
	return instances, nil
}

// CheckHealth checks that the inference service answers on /health.
func (r *Remote) CheckHealth(ctx context.Context) error {
	u, err := url.Parse(r.url)
	if err != nil {
		return err
	}
	u.Path = "/health"
	u.RawQuery = ""

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ml service unhealthy: %d", resp.StatusCode)
	}
	return nil
}

// Close is a no-op; the HTTP client holds no per-detector resources.
func (r *Remote) Close() error {
	return nil
}

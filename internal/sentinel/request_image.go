package sentinel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2/clientcredentials"
)

const DefaultProcessURL = "https://sh.dataspace.copernicus.eu/api/v1/process"

// Product selects the evalscript sent to the process API.
type Product int

const (
	// Bands is the 5-band FLOAT32 analysis raster.
	Bands Product = iota
	// TrueColor is an 8-bit RGB preview.
	TrueColor
)

const bandsEvalscript = `
    //VERSION=3
    function setup() {
      return {
        input: ["B03", "B04", "B08", "B11", "SCL"],
        output: {
          id: "default",
          bands: 5,
          sampleType: SampleType.FLOAT32,
        },
      }
    }

    function evaluatePixel(sample) {
      return [sample.B03, sample.B04, sample.B08, sample.B11, sample.SCL];
    }
  `

const trueColorEvalscript = `
    //VERSION=3
    function setup() {
      return {
        input: ["B02", "B03", "B04"],
        output: {
          id: "default",
          bands: 3,
          sampleType: SampleType.UINT8,
        },
      }
    }

    function evaluatePixel(sample) {
      return [
        Math.min(1, sample.B04 * 2.5) * 255,
        Math.min(1, sample.B03 * 2.5) * 255,
        Math.min(1, sample.B02 * 2.5) * 255,
      ];
    }
  `

var ErrImageNotFound = errors.New("image not found")

// ProcessClient fetches Sentinel-2 L2A rasters from the process API.
type ProcessClient struct {
	// ClientIDs and ClientSecrets are tried pairwise in order.
	ClientIDs     []string
	ClientSecrets []string
	TokenURL      string
	ProcessURL    string
	GSDMeters     float64
	Retries       int
	RetryDelay    time.Duration
	Logger        logrus.FieldLogger
}

// NewProcessClient splits comma separated credential lists.
func NewProcessClient(clientIDs, clientSecrets, tokenURL, processURL string, gsdMeters float64, logger logrus.FieldLogger) (*ProcessClient, error) {
	if clientIDs == "" || clientSecrets == "" || tokenURL == "" {
		return nil, fmt.Errorf("missing required settings: COPERNICUS_CLIENT_ID, COPERNICUS_CLIENT_SECRET, or COPERNICUS_TOKEN_URL")
	}
	ids := strings.Split(clientIDs, ",")
	secrets := strings.Split(clientSecrets, ",")
	if len(ids) != len(secrets) {
		return nil, fmt.Errorf("mismatched number of client IDs and secrets")
	}
	if processURL == "" {
		processURL = DefaultProcessURL
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ProcessClient{
		ClientIDs:     ids,
		ClientSecrets: secrets,
		TokenURL:      tokenURL,
		ProcessURL:    processURL,
		GSDMeters:     gsdMeters,
		Retries:       10,
		RetryDelay:    5 * time.Second,
		Logger:        logger,
	}, nil
}

func (c *ProcessClient) payload(product Product, bbox [4]float64, date time.Time) ([]byte, error) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour*23 + time.Minute*59 + time.Second*59)

	gsd := c.GSDMeters
	if gsd <= 0 {
		gsd = 10
	}
	width, height := PixelSize(bbox, gsd)

	evalscript := bandsEvalscript
	if product == TrueColor {
		evalscript = trueColorEvalscript
	}

	requestPayload := map[string]interface{}{
		"input": map[string]interface{}{
			"bounds": map[string]interface{}{
				"bbox":       bbox[:],
				"properties": map[string]string{"crs": "http://www.opengis.net/def/crs/EPSG/0/4326"},
			},
			"data": []map[string]interface{}{
				{
					"dataFilter": map[string]interface{}{
						"timeRange": map[string]string{
							"from": start.Format(time.RFC3339),
							"to":   end.Format(time.RFC3339),
						},
					},
					"type": "sentinel-2-l2a",
				},
			},
		},
		"output": map[string]interface{}{
			"width":  width,
			"height": height,
			"responses": []map[string]interface{}{
				{
					"identifier": "default",
					"format": map[string]string{
						"type": "image/tiff",
					},
				},
			},
		},
		"evalscript": evalscript,
		"mosaicking": "mostRecent",
	}
	return json.Marshal(requestPayload)
}

// Fetch downloads one product for bbox (minLon, minLat, maxLon, maxLat) on
// date. Each credential pair is retried up to Retries times; 401 and 403
// responses move on to the next pair immediately. An empty image and a done
// context end the call without trying further pairs.
func (c *ProcessClient) Fetch(ctx context.Context, product Product, bbox [4]float64, date time.Time) ([]byte, error) {
	requestBody, err := c.payload(product, bbox, date)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	for i, clientID := range c.ClientIDs {
		config := &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: c.ClientSecrets[i],
			TokenURL:     c.TokenURL,
		}
		httpClient := config.Client(ctx)

		var content []byte
		content, err = c.fetchWithRetry(ctx, httpClient, requestBody)
		if err == nil {
			return content, nil
		}
		// Another credential pair cannot find a missing image or outlive ctx.
		if errors.Is(err, ErrImageNotFound) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.Logger.WithError(err).WithField("client", i).Warn("process request failed")
	}
	return nil, err
}

func (c *ProcessClient) fetchWithRetry(ctx context.Context, httpClient *http.Client, body []byte) ([]byte, error) {
	retries := c.Retries
	if retries < 1 {
		retries = 1
	}
	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ProcessURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		response, err := httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			content, readErr := io.ReadAll(response.Body)
			response.Body.Close()
			switch {
			case readErr != nil:
				lastErr = fmt.Errorf("failed to read response body: %w", readErr)
			case response.StatusCode == http.StatusOK:
				if len(content) == 0 {
					return nil, ErrImageNotFound
				}
				return content, nil
			case response.StatusCode == http.StatusUnauthorized || response.StatusCode == http.StatusForbidden:
				return nil, fmt.Errorf("unauthorized access, check your client ID and secret: status %d", response.StatusCode)
			default:
				lastErr = fmt.Errorf("status %d: %s", response.StatusCode, strings.TrimSpace(string(content)))
			}
		}
		c.Logger.WithField("attempt", attempt).WithError(lastErr).Debug("process request attempt failed")

		if attempt < retries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.RetryDelay):
			}
		}
	}
	return nil, fmt.Errorf("failed to request image after %d attempts: %w", retries, lastErr)
}

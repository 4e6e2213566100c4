package ml

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/raster"
)

const detectMethod = "/vessel.VesselDetector/Detect"

type Detection struct {
	Box   raster.Box
	Score float64
}

// VesselClient calls an external vessel detector over gRPC. Requests and
// responses are google.protobuf.Struct messages:
//
//	request:  {image: base64 PNG, width, height, confidence}
//	response: {boxes: [{x1, y1, x2, y2, score}]}
type VesselClient struct {
	conn       *grpc.ClientConn
	Confidence float64
	MinArea    int
	Timeout    time.Duration
}

func NewVesselClient(addr string, confidence float64, minArea int, opts ...grpc.DialOption) (*VesselClient, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(10*1024*1024),
			grpc.MaxCallSendMsgSize(10*1024*1024),
		),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to gRPC server: %w", err)
	}
	return &VesselClient{
		conn:       conn,
		Confidence: confidence,
		MinArea:    minArea,
		Timeout:    time.Minute * 5,
	}, nil
}

func (c *VesselClient) Close() error {
	return c.conn.Close()
}

// Detect returns the vessels found in an RGB preview. Detections scoring
// below Confidence or smaller than MinArea pixels are dropped.
func (c *VesselClient) Detect(ctx context.Context, image []byte, width, height int) ([]Detection, error) {
	req, err := structpb.NewStruct(map[string]interface{}{
		"image":      base64.StdEncoding.EncodeToString(image),
		"width":      width,
		"height":     height,
		"confidence": c.Confidence,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build detect request: %w", err)
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, detectMethod, req, resp); err != nil {
		return nil, fmt.Errorf("error calling Detect: %w", err)
	}
	return c.convertToDetections(resp)
}

func (c *VesselClient) convertToDetections(resp *structpb.Struct) ([]Detection, error) {
	boxes := resp.GetFields()["boxes"].GetListValue()
	var detections []Detection
	for i, v := range boxes.GetValues() {
		fields := v.GetStructValue().GetFields()
		if fields == nil {
			return nil, fmt.Errorf("box %d is not an object", i)
		}
		d := Detection{
			Box: raster.Box{
				X1: int(fields["x1"].GetNumberValue()),
				Y1: int(fields["y1"].GetNumberValue()),
				X2: int(fields["x2"].GetNumberValue()),
				Y2: int(fields["y2"].GetNumberValue()),
			},
			Score: fields["score"].GetNumberValue(),
		}
		if d.Score < c.Confidence || d.Box.Area() < c.MinArea {
			continue
		}
		detections = append(detections, d)
	}
	return detections, nil
}

// Boxes returns the detection boxes in preview pixels.
func Boxes(detections []Detection) []raster.Box {
	boxes := make([]raster.Box, len(detections))
	for i, d := range detections {
		boxes[i] = d.Box
	}
	return boxes
}

package report

import (
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/mask"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/raster"
)

// Evaluation compares a predicted mask against ground truth. Ratios are
// percentages; a ratio with a zero denominator is 0.
type Evaluation struct {
	TP int `json:"tp" csv:"tp"`
	FP int `json:"fp" csv:"fp"`
	TN int `json:"tn" csv:"tn"`
	FN int `json:"fn" csv:"fn"`

	Accuracy  float64 `json:"accuracy" csv:"accuracy"`
	Precision float64 `json:"precision" csv:"precision"`
	Recall    float64 `json:"recall" csv:"recall"`
	F1        float64 `json:"f1" csv:"f1"`
	IoU       float64 `json:"iou" csv:"iou"`
}

// EvaluateMask scores pred against truth. pred is resampled to the truth
// shape with nearest-neighbour sampling first.
func EvaluateMask(pred, truth raster.Mask) Evaluation {
	if !pred.SameShape(truth) {
		pred = mask.Resize(pred, truth.Width, truth.Height)
	}

	var e Evaluation
	for i, t := range truth.Data {
		p := pred.Data[i]
		switch {
		case p && t:
			e.TP++
		case p && !t:
			e.FP++
		case !p && t:
			e.FN++
		default:
			e.TN++
		}
	}

	e.Accuracy = ratio(e.TP+e.TN, e.TP+e.TN+e.FP+e.FN)
	e.Precision = ratio(e.TP, e.TP+e.FP)
	e.Recall = ratio(e.TP, e.TP+e.FN)
	e.F1 = ratio(2*e.TP, 2*e.TP+e.FP+e.FN)
	e.IoU = ratio(e.TP, e.TP+e.FP+e.FN)
	return e
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return 100 * float64(num) / float64(den)
}

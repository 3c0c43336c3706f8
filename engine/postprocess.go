package engine

import (
	"sort"

	iface "FaceDetServer/interface"
)

type candidate struct {
	conf           float32
	x1, y1, x2, y2 float32
}

// Faces keeps boxes whose face score reaches conf, applies greedy
// non-maximum suppression at iou and scales the survivors from normalized
// corner form to pixel coordinates. The face score is the last column of
// each score row.
func Faces(scores, boxes iface.Tensor, conf, iou float32, width, height int) []iface.Result {
	boxRows := boxes.Rows()
	scoreRows := scores.Rows()
	if len(boxRows) == 0 || len(scoreRows) != len(boxRows) {
		return []iface.Result{}
	}
	cands := make([]candidate, 0, 64)
	for i, row := range boxRows {
		if len(row) < 4 {
			return []iface.Result{}
		}
		s := scoreRows[i][len(scoreRows[i])-1]
		if s < conf {
			continue
		}
		cands = append(cands, candidate{
			conf: s,
			x1:   clamp(row[0]*float32(width), 0, float32(width)),
			y1:   clamp(row[1]*float32(height), 0, float32(height)),
			x2:   clamp(row[2]*float32(width), 0, float32(width)),
			y2:   clamp(row[3]*float32(height), 0, float32(height)),
		})
	}
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].conf > cands[j].conf
	})

	kept := make([]candidate, 0, len(cands))
	for _, c := range cands {
		suppressed := false
		for _, k := range kept {
			if overlap(c, k) > iou {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, c)
		}
	}

	results := make([]iface.Result, 0, len(kept))
	for _, c := range kept {
		box := iface.Box{
			LT: iface.Position{X: c.x1, Y: c.y1},
			RT: iface.Position{X: c.x2, Y: c.y1},
			RB: iface.Position{X: c.x2, Y: c.y2},
			LB: iface.Position{X: c.x1, Y: c.y2},
		}
		results = append(results, iface.Result{
			Conf: c.conf,
			Box:  box,
			Center: iface.Position{
				X: (box.LT.X + box.RB.X) / 2,
				Y: (box.LT.Y + box.RB.Y) / 2,
			},
		})
	}
	return results
}

func overlap(a, b candidate) float32 {
	ix := min(a.x2, b.x2) - max(a.x1, b.x1)
	iy := min(a.y2, b.y2) - max(a.y1, b.y1)
	if ix <= 0 || iy <= 0 {
		return 0
	}
	inter := ix * iy
	union := area(a) + area(b) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func area(c candidate) float32 {
	w, h := c.x2-c.x1, c.y2-c.y1
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

func clamp(v, lo, hi float32) float32 {
	return max(lo, min(hi, v))
}

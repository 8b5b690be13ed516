package motion

import "image"

// eachBlob calls fn with every outline of mask: first the 8-connected regions
// of non-zero pixels in scan order, then the holes inside them, i.e.
// 4-connected regions of zero pixels that do not reach the frame edge. A hole
// is bounded by the ring of changed pixels around it. Returning false from fn
// stops the scan.
func eachBlob(mask *image.Gray, fn func(Blob) bool) {
	l := newLabeler(mask)
	if l == nil {
		return
	}

	for _, fg := range []bool{true, false} {
		for idx := range l.visited {
			if l.visited[idx] || l.set(idx) != fg {
				continue
			}
			bounds, edge := l.fill(idx, fg)
			if !fg {
				if edge {
					continue
				}
				bounds = bounds.Inset(-1).Intersect(image.Rect(0, 0, l.w, l.h))
			}
			if !fn(Blob{Bounds: bounds}) {
				return
			}
		}
	}
}

type labeler struct {
	mask    *image.Gray
	w, h    int
	visited []bool
	stack   []int
}

func newLabeler(mask *image.Gray) *labeler {
	w, h := mask.Rect.Dx(), mask.Rect.Dy()
	if w == 0 || h == 0 {
		return nil
	}
	return &labeler{
		mask:    mask,
		w:       w,
		h:       h,
		visited: make([]bool, w*h),
		stack:   make([]int, 0, 64),
	}
}

func (l *labeler) set(idx int) bool {
	x, y := idx%l.w, idx/l.w
	return l.mask.Pix[y*l.mask.Stride+x] != 0
}

var (
	neighbours8 = [][2]int{{-1, -1}, {0, -1}, {1, -1}, {-1, 0}, {1, 0}, {-1, 1}, {0, 1}, {1, 1}}
	neighbours4 = [][2]int{{0, -1}, {-1, 0}, {1, 0}, {0, 1}}
)

// fill floods the region holding start, which has value fg. Changed pixels
// connect through all 8 neighbours and unchanged ones through 4, so an
// outline never crosses a diagonal gap. edge reports whether the region
// touches the frame border.
func (l *labeler) fill(start int, fg bool) (bounds image.Rectangle, edge bool) {
	neighbours := neighbours4
	if fg {
		neighbours = neighbours8
	}

	minX, minY := start%l.w, start/l.w
	maxX, maxY := minX, minY
	l.visited[start] = true
	l.stack = append(l.stack[:0], start)

	for len(l.stack) > 0 {
		cur := l.stack[len(l.stack)-1]
		l.stack = l.stack[:len(l.stack)-1]
		cx, cy := cur%l.w, cur/l.w

		minX, maxX = min(minX, cx), max(maxX, cx)
		minY, maxY = min(minY, cy), max(maxY, cy)
		if cx == 0 || cy == 0 || cx == l.w-1 || cy == l.h-1 {
			edge = true
		}

		for _, d := range neighbours {
			nx, ny := cx+d[0], cy+d[1]
			if nx < 0 || nx >= l.w || ny < 0 || ny >= l.h {
				continue
			}
			n := ny*l.w + nx
			if l.visited[n] || l.set(n) != fg {
				continue
			}
			l.visited[n] = true
			l.stack = append(l.stack, n)
		}
	}

	return image.Rect(minX, minY, maxX+1, maxY+1), edge
}

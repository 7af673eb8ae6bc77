package game

import (
	"container/heap"
	"math"
)

const (
	straightCost = 10
	diagonalCost = 14
)

type neighbor struct {
	dx, dy int
	cost   int
}

var neighborOffsets = [...]neighbor{
	{dx: 0, dy: -1, cost: straightCost},
	{dx: 1, dy: 0, cost: straightCost},
	{dx: 0, dy: 1, cost: straightCost},
	{dx: -1, dy: 0, cost: straightCost},
	{dx: 1, dy: -1, cost: diagonalCost},
	{dx: 1, dy: 1, cost: diagonalCost},
	{dx: -1, dy: 1, cost: diagonalCost},
	{dx: -1, dy: -1, cost: diagonalCost},
}

// octile is the diagonal-distance heuristic matching the move costs.
func octile(a, b Point) int {
	dx := absInt(a.X - b.X)
	dy := absInt(a.Y - b.Y)
	return diagonalCost*min(dx, dy) + straightCost*absInt(dx-dy)
}

type pathNode struct {
	point  Point
	g      int
	f      int
	tie    float64
	index  int
	parent *pathNode
}

type pathQueue []*pathNode

func (pq pathQueue) Len() int { return len(pq) }

func (pq pathQueue) Less(i, j int) bool {
	if pq[i].f != pq[j].f {
		return pq[i].f < pq[j].f
	}
	return pq[i].tie < pq[j].tie
}

func (pq pathQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *pathQueue) Push(x any) {
	n := len(*pq)
	item := x.(*pathNode)
	item.index = n
	*pq = append(*pq, item)
}

func (pq *pathQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[:n-1]
	return item
}

// FindPath runs A* from u's cell until it reaches a cell adjacent to target.
// The returned path never includes the starting cell. An empty path means
// u is already adjacent or no route exists; neither is an error.
func (a *Arena) FindPath(u, target *Unit) Path {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.findPath(u, target)
}

func (a *Arena) findPath(u, target *Unit) Path {
	goal := target.Footprint()
	aim := target.Position()
	if target.Kind == KindTower {
		aim = a.findClosestAttackPoint(u, target)
	}
	return Path{
		Steps:       a.astar(u, goal, aim),
		Destination: target.Position(),
	}
}

func (a *Arena) astar(u *Unit, goal Rect, aim Point) []Point {
	start := u.Position()
	if pointRect(start.X, start.Y).ChebyshevTo(goal) <= 1 {
		return nil
	}

	open := &pathQueue{}
	heap.Init(open)
	heap.Push(open, &pathNode{point: start, f: octile(start, aim)})
	gScore := map[int]int{a.nodeIndex(start): 0}
	closed := make(map[int]struct{})

	for open.Len() > 0 {
		current := heap.Pop(open).(*pathNode)
		currIdx := a.nodeIndex(current.point)
		if _, seen := closed[currIdx]; seen {
			continue
		}
		closed[currIdx] = struct{}{}
		if current.parent != nil && pointRect(current.point.X, current.point.Y).ChebyshevTo(goal) == 1 {
			return reconstructPath(current)
		}

		for _, delta := range neighborOffsets {
			next := Point{X: current.point.X + delta.dx, Y: current.point.Y + delta.dy}
			if !a.isWalkable(next.X, next.Y, u) {
				continue
			}
			idx := a.nodeIndex(next)
			if _, seen := closed[idx]; seen {
				continue
			}
			tentativeG := current.g + delta.cost
			if prev, ok := gScore[idx]; ok && tentativeG >= prev {
				continue
			}
			gScore[idx] = tentativeG
			heap.Push(open, &pathNode{
				point:  next,
				g:      tentativeG,
				f:      tentativeG + octile(next, aim),
				tie:    CalculateEuclideanDistance(next.X, next.Y, aim.X, aim.Y),
				parent: current,
			})
		}
	}
	return nil
}

func (a *Arena) nodeIndex(p Point) int {
	return p.Y*a.Cols + p.X
}

// reconstructPath walks the parent chain back to, but excluding, the start.
func reconstructPath(end *pathNode) []Point {
	var path []Point
	for node := end; node != nil && node.parent != nil; node = node.parent {
		path = append(path, node.point)
	}
	for i := 0; i < len(path)/2; i++ {
		j := len(path) - 1 - i
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// FindClosestAttackPoint picks the free cell on the ring around tower's
// footprint nearest to u. With no free ring cell it falls back to the
// tower's anchor, which the caller must tolerate as unreachable.
func (a *Arena) FindClosestAttackPoint(u, tower *Unit) Point {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.findClosestAttackPoint(u, tower)
}

func (a *Arena) findClosestAttackPoint(u, tower *Unit) Point {
	fp := tower.Footprint()
	best := tower.Position()
	bestDist := math.Inf(1)
	for y := fp.Y - 1; y <= fp.Y+fp.H; y++ {
		for x := fp.X - 1; x <= fp.X+fp.W; x++ {
			if fp.Contains(x, y) || !a.isWalkable(x, y, u) {
				continue
			}
			if d := CalculateEuclideanDistance(u.X, u.Y, x, y); d < bestDist {
				best, bestDist = Point{X: x, Y: y}, d
			}
		}
	}
	return best
}

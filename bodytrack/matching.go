package bodytrack

import (
	"github.com/arthurkushman/go-hungarian"
)

// buildIoUMatrix is a helper to create the IoU matrix.
// Rows are tracked-body boxes, columns are detections.
func buildIoUMatrix(trackBoxes []Rectangle, detections []Detection) [][]float64 {
	iouMatrix := make([][]float64, len(trackBoxes))
	for i, trkBox := range trackBoxes {
		row := make([]float64, len(detections))
		for j, det := range detections {
			row[j] = IoU(trkBox, det.BBox)
		}
		iouMatrix[i] = row
	}
	return iouMatrix
}

// assign performs matching using the Hungarian or greedy algorithm.
// Returns a slice of {trackIndex, detectionIndex} pairs.
func (eng *QueueEngine) assign(iouMatrix [][]float64) [][2]int {
	numTracks := len(iouMatrix)
	if numTracks == 0 {
		return nil
	}
	numDetections := len(iouMatrix[0])
	if numDetections == 0 {
		return nil
	}
	switch eng.cfg.Algorithm {
	case MatchingAlgorithmHungarian:
		paddedMatrix := iouMatrix
		if numTracks != numDetections {
			// Rectangular matrix - pad to square with zero IoU values
			paddedSize := maxInt(numTracks, numDetections)
			paddedMatrix = make([][]float64, paddedSize)
			for i := 0; i < paddedSize; i++ {
				paddedMatrix[i] = make([]float64, paddedSize)
			}
			for i := 0; i < numTracks; i++ {
				copy(paddedMatrix[i], iouMatrix[i])
			}
		}
		assignmentsMap := hungarian.SolveMax(paddedMatrix)
		matches := make([][2]int, 0, len(assignmentsMap))
		for trackIdx, rowMap := range assignmentsMap {
			for detIdx := range rowMap {
				// Padding rows/columns fall outside the real bounds
				if trackIdx < numTracks && detIdx < numDetections {
					matches = append(matches, [2]int{trackIdx, detIdx})
				}
				break
			}
		}
		return matches
	case MatchingAlgorithmGreedy:
		fallthrough
	default:
		return greedyAssign(iouMatrix, eng.cfg.MinIoU)
	}
}

// greedyAssign picks for every track the best still-unmatched detection.
func greedyAssign(iouMatrix [][]float64, minIoU float64) [][2]int {
	matches := make([][2]int, 0)
	matchedDetections := make(map[int]struct{})
	for i := range iouMatrix {
		bestIoU := -1.0
		bestDetIdx := -1
		for j, iouVal := range iouMatrix[i] {
			if _, found := matchedDetections[j]; found {
				continue
			}
			if iouVal > bestIoU && iouVal >= minIoU {
				bestIoU = iouVal
				bestDetIdx = j
			}
		}
		if bestDetIdx != -1 {
			matches = append(matches, [2]int{i, bestDetIdx})
			matchedDetections[bestDetIdx] = struct{}{}
		}
	}
	return matches
}

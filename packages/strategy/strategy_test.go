package strategy

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChooseBands(t *testing.T) {
	th := DefaultThresholds()

	assert.Equal(t, InProcess, Choose(8, th))
	assert.Equal(t, WarmWorkers, Choose(50, th))
	assert.Equal(t, FullParallel, Choose(300, th))
}

func TestChooseBoundaryValues(t *testing.T) {
	th := DefaultThresholds()

	assert.Equal(t, InProcess, Choose(0, th))
	assert.Equal(t, InProcess, Choose(19, th))
	assert.Equal(t, WarmWorkers, Choose(20, th))
	assert.Equal(t, WarmWorkers, Choose(99, th))
	assert.Equal(t, FullParallel, Choose(100, th))
}

func TestChooseCustomThresholds(t *testing.T) {
	th := Thresholds{Warm: 5, Parallel: 10}

	assert.Equal(t, InProcess, Choose(4, th))
	assert.Equal(t, WarmWorkers, Choose(5, th))
	assert.Equal(t, WarmWorkers, Choose(9, th))
	assert.Equal(t, FullParallel, Choose(10, th))
}

func TestChooseZeroThresholdsFallBack(t *testing.T) {
	assert.Equal(t, InProcess, Choose(8, Thresholds{}))
	assert.Equal(t, FullParallel, Choose(300, Thresholds{}))
}

func TestWorkers(t *testing.T) {
	assert.Equal(t, 1, InProcess.Workers(8))
	assert.Equal(t, 8, WarmWorkers.Workers(8))
	assert.Equal(t, 4, WarmWorkers.Workers(0))
	assert.Equal(t, runtime.NumCPU(), FullParallel.Workers(8))
}

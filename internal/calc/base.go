package calc

import (
	"runtime"
	"sync"
)

// PipeLine fans independent jobs out to a fixed pool of workers
type PipeLine struct {
	numWorker int
}

// Init returns a compute PipeLine. numWorker <= 0 uses every CPU.
func Init(numWorker int) *PipeLine {
	if numWorker <= 0 {
		numWorker = runtime.NumCPU()
	}
	return &PipeLine{numWorker: numWorker}
}

// Workers returns the number of workers
func (p *PipeLine) Workers() int {
	return p.numWorker
}

func worker(job func(int), order <-chan int, wg *sync.WaitGroup) {
	for {
		index, ok := <-order
		if ok {
			job(index)
			wg.Done()
		} else {
			break
		}
	}

	return
}

// Each runs job once for every index in [0, n) and waits for all of them.
// Jobs must only write to state owned by their index.
func (p *PipeLine) Each(n int, job func(i int)) {
	if n <= 0 {
		return
	}

	order := make(chan int, p.numWorker)
	var wg sync.WaitGroup

	wg.Add(n)

	for i := 0; i < p.numWorker; i++ {
		go worker(job, order, &wg)
	}

	for i := 0; i < n; i++ {
		order <- i
	}

	wg.Wait()
	close(order)
}

type statistic struct {
	avg float64
	std float64
}

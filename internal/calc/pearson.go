package calc

import (
	"fmt"
	"math"
	"sync"

	"github.com/gonum/floats"
	"github.com/gonum/matrix/mat64"
)

func getStat(series [][]float64, stats []statistic, order <-chan int, wg *sync.WaitGroup) {
	for {
		index, ok := <-order
		if ok {
			x := series[index]
			n := float64(len(x))

			avgVal := floats.Sum(x) / n
			var accSqrVal float64
			for _, v := range x {
				d := v - avgVal
				accSqrVal += d * d
			}

			stats[index].avg = avgVal
			stats[index].std = math.Sqrt(accSqrVal / n)

			wg.Done()
		} else {
			break
		}
	}

	return
}

func pearson(series [][]float64, pearsonMat *mat64.Dense, stats []statistic, order <-chan int, wg *sync.WaitGroup) {
	numSeries := len(series)

	for {
		from, ok := <-order
		if ok {
			x := series[from]
			for to := from; to < numSeries; to++ {
				y := series[to]

				var accProd float64
				for t := range x {
					accProd += (x[t] - stats[from].avg) * (y[t] - stats[to].avg)
				}

				cov := accProd / float64(len(x))
				r := cov / (stats[from].std * stats[to].std)
				if stats[from].std == 0 || stats[to].std == 0 {
					r = math.NaN()
				} else if from == to {
					r = 1
				}

				pearsonMat.Set(from, to, r)
				pearsonMat.Set(to, from, r)
			}

			wg.Done()
		} else {
			break
		}
	}

	return
}

func checkSeries(series [][]float64) error {
	if len(series) == 0 {
		return fmt.Errorf("[calc] no series")
	}
	n := len(series[0])
	if n == 0 {
		return fmt.Errorf("[calc] series are empty")
	}
	for i, s := range series {
		if len(s) != n {
			return fmt.Errorf("[calc] series %d has %d samples, want %d", i, len(s), n)
		}
	}
	return nil
}

func (p *PipeLine) stats(series [][]float64) []statistic {
	stats := make([]statistic, len(series))

	order := make(chan int, p.numWorker)
	var wg sync.WaitGroup

	wg.Add(len(series))

	for i := 0; i < p.numWorker; i++ {
		go getStat(series, stats, order, &wg)
	}

	for i := range series {
		order <- i
	}

	wg.Wait()
	close(order)

	return stats
}

// Stats returns the mean and population standard deviation of every series
func (p *PipeLine) Stats(series [][]float64) ([]float64, []float64, error) {
	if err := checkSeries(series); err != nil {
		return nil, nil, err
	}

	stats := p.stats(series)
	mean := make([]float64, len(stats))
	std := make([]float64, len(stats))
	for i, s := range stats {
		mean[i] = s.avg
		std[i] = s.std
	}
	return mean, std, nil
}

// Correlation does Pearson's correlation between every pair of series.
// Pairs involving a constant series are NaN.
func (p *PipeLine) Correlation(series [][]float64) (*mat64.Dense, error) {
	if err := checkSeries(series); err != nil {
		return nil, err
	}

	numSeries := len(series)
	stats := p.stats(series)
	outputMat := mat64.NewDense(numSeries, numSeries, nil)

	order := make(chan int, p.numWorker)
	var wg sync.WaitGroup

	wg.Add(numSeries)

	for i := 0; i < p.numWorker; i++ {
		go pearson(series, outputMat, stats, order, &wg)
	}

	for i := 0; i < numSeries; i++ {
		order <- i
	}

	wg.Wait()
	close(order)

	return outputMat, nil
}

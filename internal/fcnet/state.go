package fcnet

import (
	"sort"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/fcnet/internal/nn"
)

// Batch norm running statistic name prefixes, 1-indexed like parameters.
const (
	runningMeanPrefix = "running_mean"
	runningVarPrefix  = "running_var"
)

// StateDict returns a copy of every parameter keyed by name (W1, b1, gamma1,
// beta1, ...). Vectors are returned as 1xD matrices.
func (net *FullyConnectedNet) StateDict() map[string]*mat.Dense {
	net.mu.RLock()
	defer net.mu.RUnlock()
	return net.params.Clone().Dict()
}

// LoadStateDict replaces the parameters with the values in dict.
//
// dict must hold exactly the names StateDict returns with the same shapes;
// a missing or extra batch norm parameter set is reported as ErrInvalidArgument
// and leaves the network unchanged. Loaded values are rounded to the model
// precision.
func (net *FullyConnectedNet) LoadStateDict(dict map[string]*mat.Dense) error {
	net.mu.Lock()
	defer net.mu.Unlock()

	want := net.params.Dict()
	for name := range dict {
		if _, ok := want[name]; !ok {
			return invalidf("unexpected parameter %q", name)
		}
	}
	for name, dst := range want {
		src, ok := dict[name]
		if !ok {
			return invalidf("missing parameter %q", name)
		}
		r, c := dst.Dims()
		sr, sc := src.Dims()
		if r != sr || c != sc {
			return invalidf("parameter %q: shape (%d, %d), expected (%d, %d)", name, sr, sc, r, c)
		}
	}

	for name, dst := range want {
		dst.Copy(dict[name])
	}
	roundParams(net.cfg.DType, net.params)
	return nil
}

// BatchNormStats returns a copy of the running mean and variance of every batch
// norm layer, keyed running_mean1, running_var1, ... as 1xD matrices. It is
// empty when batch normalization is disabled.
func (net *FullyConnectedNet) BatchNormStats() map[string]*mat.Dense {
	net.mu.RLock()
	defer net.mu.RUnlock()

	stats := make(map[string]*mat.Dense, 2*len(net.bn))
	for i, s := range net.bn {
		stats[statName(runningMeanPrefix, i)] = mat.DenseCopyOf(rowView(s.RunningMean))
		stats[statName(runningVarPrefix, i)] = mat.DenseCopyOf(rowView(s.RunningVar))
	}
	return stats
}

// LoadBatchNormStats restores running statistics saved by BatchNormStats.
func (net *FullyConnectedNet) LoadBatchNormStats(stats map[string]*mat.Dense) error {
	net.mu.Lock()
	defer net.mu.Unlock()

	if len(stats) != 2*len(net.bn) {
		return invalidf("got %d batch norm statistics, expected %d", len(stats), 2*len(net.bn))
	}
	for i, s := range net.bn {
		for _, pair := range []struct {
			prefix string
			dst    *mat.VecDense
		}{{runningMeanPrefix, s.RunningMean}, {runningVarPrefix, s.RunningVar}} {
			name := statName(pair.prefix, i)
			src, ok := stats[name]
			if !ok {
				return invalidf("missing batch norm statistic %q", name)
			}
			if r, c := src.Dims(); r != 1 || c != pair.dst.Len() {
				return invalidf("batch norm statistic %q: shape (%d, %d), expected (1, %d)", name, r, c, pair.dst.Len())
			}
		}
	}

	for i, s := range net.bn {
		rowView(s.RunningMean).Copy(stats[statName(runningMeanPrefix, i)])
		rowView(s.RunningVar).Copy(stats[statName(runningVarPrefix, i)])
	}
	return nil
}

// BatchNormState returns the running statistics of hidden layer i (0-indexed),
// or nil when batch normalization is disabled.
func (net *FullyConnectedNet) BatchNormState(i int) *nn.BatchNormState {
	if i < 0 || i >= len(net.bn) {
		return nil
	}
	return net.bn[i]
}

// SortedNames returns the keys of a state dict in a stable order: by layer,
// then W, b, gamma, beta, running statistics.
func SortedNames(dict map[string]*mat.Dense) []string {
	names := make([]string, 0, len(dict))
	for name := range dict {
		names = append(names, name)
	}
	sort.Slice(names, func(a, b int) bool {
		pa, la := splitName(names[a])
		pb, lb := splitName(names[b])
		if la != lb {
			return la < lb
		}
		if ra, rb := prefixRank(pa), prefixRank(pb); ra != rb {
			return ra < rb
		}
		return names[a] < names[b]
	})
	return names
}

func statName(prefix string, i int) string {
	return prefix + strconv.Itoa(i+1)
}

// splitName splits "gamma12" into ("gamma", 12). Names without a layer suffix
// get layer 0.
func splitName(name string) (string, int) {
	end := len(name)
	for end > 0 && name[end-1] >= '0' && name[end-1] <= '9' {
		end--
	}
	layer := 0
	for _, ch := range name[end:] {
		layer = layer*10 + int(ch-'0')
	}
	return name[:end], layer
}

func prefixRank(prefix string) int {
	switch prefix {
	case weightPrefix:
		return 0
	case biasPrefix:
		return 1
	case gammaPrefix:
		return 2
	case betaPrefix:
		return 3
	case runningMeanPrefix:
		return 4
	case runningVarPrefix:
		return 5
	default:
		return 6
	}
}

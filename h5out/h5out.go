/*package h5out writes avalanches to HDF5 files as extendible tables:
/Avalanche/runs, /Avalanche/endpoints and /Avalanche/samples. The last holds
trajectory samples and is only filled when the Writer is registered as an
observer of the tracker.
*/
package h5out

import (
	"fmt"
	"log/slog"
	"sync"

	hdf5 "github.com/jmbenlloch/go-hdf5"

	"github.com/phil-mansfield/tgem/avalanche"
)

const (
	groupName = "Avalanche"
	chunkRows = 4096
	// H5S_UNLIMITED
	unlimited = ^uint(0)
)

// RunRow is one row of /Avalanche/runs.
type RunRow struct {
	Run       int32  `hdf5:"run"`
	Seed      uint64 `hdf5:"seed"`
	Electrons int64  `hdf5:"electrons"`
	Ions      int64  `hdf5:"ions"`
	Truncated int8   `hdf5:"truncated"`
}

// EndpointRow is one row of /Avalanche/endpoints.
type EndpointRow struct {
	Run         int32   `hdf5:"run"`
	SpawnIndex  int64   `hdf5:"spawn_index"`
	ParentIndex int64   `hdf5:"parent_index"`
	Status      int32   `hdf5:"status"`
	X0          float64 `hdf5:"x0"`
	Y0          float64 `hdf5:"y0"`
	Z0          float64 `hdf5:"z0"`
	T0          float64 `hdf5:"t0"`
	E0          float64 `hdf5:"e0"`
	X1          float64 `hdf5:"x1"`
	Y1          float64 `hdf5:"y1"`
	Z1          float64 `hdf5:"z1"`
	T1          float64 `hdf5:"t1"`
	E1          float64 `hdf5:"e1"`
}

// SampleRow is one row of /Avalanche/samples. Seed identifies the
// avalanche and matches RunRow.Seed.
type SampleRow struct {
	Seed       uint64  `hdf5:"seed"`
	Track      int64   `hdf5:"track"`
	Collisions int64   `hdf5:"collisions"`
	Status     int32   `hdf5:"status"`
	X          float64 `hdf5:"x"`
	Y          float64 `hdf5:"y"`
	Z          float64 `hdf5:"z"`
	T          float64 `hdf5:"t"`
	E          float64 `hdf5:"e"`
}

func newSampleRow(smp avalanche.Sample) SampleRow {
	return SampleRow{
		Seed: smp.Seed, Track: int64(smp.Track),
		Collisions: int64(smp.Collisions), Status: int32(smp.Status),
		X: smp.State.Pos[0], Y: smp.State.Pos[1], Z: smp.State.Pos[2],
		T: smp.State.Time, E: smp.State.Energy,
	}
}

func newEndpointRow(run int, ep avalanche.Endpoint) EndpointRow {
	return EndpointRow{
		Run: int32(run), SpawnIndex: int64(ep.SpawnIndex),
		ParentIndex: int64(ep.ParentIndex), Status: int32(ep.Status),
		X0: ep.Start.Pos[0], Y0: ep.Start.Pos[1], Z0: ep.Start.Pos[2],
		T0: ep.Start.Time, E0: ep.Start.Energy,
		X1: ep.End.Pos[0], Y1: ep.End.Pos[1], Z1: ep.End.Pos[2],
		T1: ep.End.Time, E1: ep.End.Energy,
	}
}

// Writer appends avalanches to an HDF5 file. Its methods may be called
// concurrently.
type Writer struct {
	file                        *hdf5.File
	group                       *hdf5.Group
	runs, endpoints, samples    *hdf5.Dataset
	nRuns, nEndpoints, nSamples int

	// Samples are buffered and written a chunk at a time. Observe cannot
	// return errors, so the first one is kept and returned by later calls.
	pending []SampleRow
	err     error

	log *slog.Logger
	mu  sync.Mutex
}

var _ avalanche.Observer = &Writer{}

// Create truncates or creates fname. compression is the deflate level.
func Create(fname string, compression int) (*Writer, error) {
	f, err := hdf5.CreateFile(fname, hdf5.F_ACC_TRUNC)
	if err != nil {
		return nil, fmt.Errorf("error creating %s: %w", fname, err)
	}
	w := &Writer{file: f, log: slog.Default().With("module", "h5out")}

	if w.group, err = f.CreateGroup(groupName); err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating group %s: %w", groupName, err)
	}
	w.runs, err = createTable(w.group, "runs", RunRow{}, compression)
	if err != nil {
		w.Close()
		return nil, err
	}
	w.endpoints, err = createTable(
		w.group, "endpoints", EndpointRow{}, compression,
	)
	if err != nil {
		w.Close()
		return nil, err
	}
	w.samples, err = createTable(w.group, "samples", SampleRow{}, compression)
	if err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

func createTable(
	group *hdf5.Group, name string, datatype interface{}, compression int,
) (*hdf5.Dataset, error) {
	space, err := hdf5.CreateSimpleDataspace([]uint{0}, []uint{unlimited})
	if err != nil { return nil, err }
	defer space.Close()

	plist, err := hdf5.NewPropList(hdf5.P_DATASET_CREATE)
	if err != nil { return nil, err }
	defer plist.Close()

	if err = plist.SetChunk([]uint{chunkRows}); err != nil { return nil, err }
	if compression > 0 {
		if err = plist.SetDeflate(compression); err != nil { return nil, err }
	}

	dtype, err := hdf5.NewDatatypeFromValue(datatype)
	if err != nil { return nil, err }

	dset, err := group.CreateDatasetWith(name, dtype, space, plist)
	if err != nil {
		return nil, fmt.Errorf("error creating table %s: %w", name, err)
	}
	return dset, nil
}

// appendRows writes data to the end of dataset, which currently holds n
// rows.
func appendRows[T any](dataset *hdf5.Dataset, data []T, n int) error {
	if len(data) == 0 { return nil }

	length := uint(len(data))
	memspace, err := hdf5.CreateSimpleDataspace([]uint{length}, nil)
	if err != nil { return err }
	defer memspace.Close()

	if err = dataset.Resize([]uint{uint(n) + length}); err != nil {
		return err
	}
	filespace := dataset.Space()
	defer filespace.Close()

	err = filespace.SelectHyperslab(
		[]uint{uint(n)}, nil, []uint{length}, nil,
	)
	if err != nil { return err }

	return dataset.WriteSubset(&data, memspace, filespace)
}

// WriteAvalanche appends the size and endpoints of run.
func (w *Writer) WriteAvalanche(
	run int, seed uint64, agg *avalanche.Aggregator,
) error {
	electrons, ions := agg.AvalancheSize()
	row := RunRow{
		Run: int32(run), Seed: seed,
		Electrons: int64(electrons), Ions: int64(ions),
	}
	if agg.Truncated() { row.Truncated = 1 }

	eps := make([]EndpointRow, agg.EndpointCount())
	for i := range eps {
		eps[i] = newEndpointRow(run, agg.EndpointAt(i))
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.err != nil { return w.err }
	if err := appendRows(w.runs, []RunRow{row}, w.nRuns); err != nil {
		return fmt.Errorf("error writing run %d: %w", run, err)
	}
	w.nRuns++
	if err := appendRows(w.endpoints, eps, w.nEndpoints); err != nil {
		return fmt.Errorf("error writing endpoints of run %d: %w", run, err)
	}
	w.nEndpoints += len(eps)

	w.log.Debug("wrote avalanche", "run", run, "endpoints", len(eps))
	return nil
}

// Observe buffers a trajectory sample.
func (w *Writer) Observe(smp avalanche.Sample) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.err != nil || w.samples == nil { return }
	w.pending = append(w.pending, newSampleRow(smp))
	if len(w.pending) >= chunkRows { w.flushSamples() }
}

func (w *Writer) flushSamples() {
	if len(w.pending) == 0 { return }
	if err := appendRows(w.samples, w.pending, w.nSamples); err != nil {
		w.err = fmt.Errorf("error writing trajectory samples: %w", err)
		w.log.Error("could not write samples", "err", err)
		return
	}
	w.nSamples += len(w.pending)
	w.pending = w.pending[:0]
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.samples != nil && w.err == nil { w.flushSamples() }
	err := w.err
	for _, d := range []*hdf5.Dataset{w.runs, w.endpoints, w.samples} {
		if d == nil { continue }
		if e := d.Close(); e != nil && err == nil { err = e }
	}
	if w.group != nil {
		if e := w.group.Close(); e != nil && err == nil { err = e }
	}
	if w.file != nil {
		if e := w.file.Close(); e != nil && err == nil { err = e }
	}
	w.runs, w.endpoints, w.samples = nil, nil, nil
	w.group, w.file = nil, nil
	return err
}

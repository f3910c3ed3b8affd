package proc

import (
	"os"
)

// fdSet owns the descriptors the shell opens while wiring a pipeline. Every
// descriptor is closed exactly once, either when the stage that needed it has
// been launched or when the set is closed.
type fdSet struct {
	files []*os.File
}

func (s *fdSet) add(f *os.File) *os.File {
	s.files = append(s.files, f)
	return f
}

func (s *fdSet) pipe() (*os.File, *os.File, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, nil, err
	}
	s.add(r)
	s.add(w)
	return r, w, nil
}

func (s *fdSet) open(name string, flag int, perm os.FileMode) (*os.File, error) {
	f, err := os.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return s.add(f), nil
}

// release closes the given descriptors if the set owns them. Descriptors the
// set doesn't own, like the shell's own standard streams, are left alone.
func (s *fdSet) release(files ...*os.File) {
	for _, f := range files {
		if f == nil {
			continue
		}
		for i, owned := range s.files {
			if owned == f {
				owned.Close()
				s.files[i] = nil
			}
		}
	}
}

// held returns the number of descriptors still open.
func (s *fdSet) held() int {
	n := 0
	for _, f := range s.files {
		if f != nil {
			n++
		}
	}
	return n
}

// Close releases everything still held.
func (s *fdSet) Close() error {
	var firstErr error
	for i, f := range s.files {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.files[i] = nil
	}
	s.files = nil
	return firstErr
}

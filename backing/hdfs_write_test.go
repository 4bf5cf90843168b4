package backing

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// memFiles records the namenode calls replaceFile makes.
type memFiles struct {
	mu       sync.Mutex
	files    map[string][]byte
	removed  []string
	failNext error
}

type memWriter struct {
	f    *memFiles
	name string
	buf  bytes.Buffer
}

func (w *memWriter) Write(p []byte) (int, error) {
	if w.f.failNext != nil {
		return 0, w.f.failNext
	}
	return w.buf.Write(p)
}

func (w *memWriter) Close() error {
	w.f.mu.Lock()
	defer w.f.mu.Unlock()
	w.f.files[w.name] = w.buf.Bytes()
	return nil
}

func (f *memFiles) Create(name string) (io.WriteCloser, error) {
	return &memWriter{f: f, name: name}, nil
}

func (f *memFiles) Remove(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, name)
	delete(f.files, name)
	return nil
}

func (f *memFiles) Rename(oldpath, newpath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.files[oldpath]
	if !ok {
		return errors.New("rename: source missing")
	}
	f.files[newpath] = b
	delete(f.files, oldpath)
	return nil
}

var _ = Describe("replaceFile", func() {
	var f *memFiles

	BeforeEach(func() {
		f = &memFiles{files: map[string][]byte{"/ice/a": []byte("old")}}
	})

	It("renames over the existing file without removing it first", func() {
		Expect(replaceFile(f, "/ice/a", []byte("new"))).To(Succeed())
		Expect(f.files).To(Equal(map[string][]byte{"/ice/a": []byte("new")}))
		Expect(f.removed).To(BeEmpty())
	})

	It("lets the last of several writers win", func() {
		wg := sync.WaitGroup{}
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				Expect(replaceFile(f, "/ice/a", []byte("v"))).To(Succeed())
			}()
		}
		wg.Wait()
		Expect(f.files).To(Equal(map[string][]byte{"/ice/a": []byte("v")}))
	})

	It("cleans up and keeps the old bytes when the write fails", func() {
		f.failNext = errors.New("disk full")
		Expect(replaceFile(f, "/ice/a", []byte("new"))).To(MatchError("disk full"))
		Expect(f.files).To(Equal(map[string][]byte{"/ice/a": []byte("old")}))
		Expect(f.removed).To(HaveLen(1))
		Expect(strings.HasPrefix(f.removed[0], "/ice/a"+tmpMarker)).To(BeTrue())
	})
})

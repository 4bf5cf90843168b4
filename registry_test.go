package persist_test

import (
	"errors"
	"os"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mplewis/persist"
	"github.com/mplewis/persist/backing"
	"github.com/mplewis/persist/kv"
)

var offline = persist.WithHDFSDialer(func(addr, user string) (backing.HDFSClient, error) {
	return nil, errors.New("offline")
})

var _ = Describe("Registry", func() {
	var root string
	var objects *mockS3

	BeforeEach(func() {
		var err error
		root, err = os.MkdirTemp("", "ice")
		Expect(err).NotTo(HaveOccurred())
		objects = &mockS3{}
	})

	AfterEach(func() {
		os.RemoveAll(root)
	})

	It("stays empty without an ice root", func() {
		r, err := persist.New(ctx, persist.Config{})
		Expect(err).NotTo(HaveOccurred())
		for id := kv.BackendID(0); id < kv.MaxBackends; id++ {
			Expect(r.Get(id)).To(BeNil())
		}
		err = r.Store(ctx, kv.NewValue(kv.MakeString("k"), kv.Ice, nil))
		Expect(err).To(MatchError(persist.ErrNoBackend))
		Expect(r.Close()).To(Succeed())
	})

	It("spills to local disk for a directory root", func() {
		for _, ice := range []string{root, "file://" + root} {
			r, err := persist.New(ctx, persist.Config{IceRoot: ice}, persist.WithS3Client(objects))
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Ice()).To(BeAssignableToTypeOf(&backing.Local{}))
			Expect(r.Ice().(*backing.Local).Root()).To(Equal(root))
		}
	})

	It("spills to local disk for a drive letter root", func() {
		r, err := persist.New(ctx, persist.Config{IceRoot: `C:\ice`}, persist.WithS3Client(objects))
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Ice()).To(BeAssignableToTypeOf(&backing.Local{}))
	})

	It("spills to HDFS for an hdfs root", func() {
		r, err := persist.New(ctx, persist.Config{IceRoot: "hdfs://nn:8020/ice"}, persist.WithS3Client(objects), offline)
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Get(kv.Ice)).To(BeAssignableToTypeOf(&backing.HDFS{}))
		Expect(r.Get(kv.Ice).Name()).To(Equal("hdfs:hdfs://nn:8020/ice"))
	})

	It("always fills the HDFS, S3 and NFS slots", func() {
		for _, ice := range []string{root, "hdfs://nn:8020/ice"} {
			r, err := persist.New(ctx, persist.Config{IceRoot: ice}, persist.WithS3Client(objects), offline)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Get(kv.HDFS)).To(BeAssignableToTypeOf(&backing.HDFS{}))
			Expect(r.Get(kv.S3)).To(BeAssignableToTypeOf(&backing.S3{}))
			Expect(r.Get(kv.NFS)).To(BeAssignableToTypeOf(&backing.NFS{}))
			for id := kv.NFS + 1; id < kv.MaxBackends; id++ {
				Expect(r.Get(id)).To(BeNil())
			}
			Expect(r.Get(kv.MaxBackends)).To(BeNil())
		}
	})

	It("rejects other root schemes", func() {
		_, err := persist.New(ctx, persist.Config{IceRoot: "ftp://host/ice"}, persist.WithS3Client(objects))
		Expect(err).To(MatchError(backing.ErrUnsupportedScheme))
	})

	It("dispatches values to the backend they name", func() {
		r, err := persist.New(ctx, persist.Config{IceRoot: root}, persist.WithS3Client(objects))
		Expect(err).NotTo(HaveOccurred())
		v := kv.NewValue(kv.ChunkKey(kv.VecKey([]byte("frame")), 7), kv.Ice, []byte("spilled"))

		Expect(r.Store(ctx, v)).To(Succeed())
		data, err := r.Load(ctx, v)
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal([]byte("spilled")))
		Expect(r.Delete(ctx, v)).To(Succeed())
		Expect(r.Delete(ctx, v)).To(Succeed())

		// the NFS backend has no spill root configured
		v.Backend = kv.NFS
		Expect(r.Store(ctx, v)).To(MatchError(backing.ErrNoRoot))

		v.Backend = 5
		_, err = r.Load(ctx, v)
		Expect(err).To(MatchError(persist.ErrNoBackend))
		Expect(r.Close()).To(Succeed())
	})

	It("logs its layout", func() {
		core, logs := observer.New(zap.InfoLevel)
		_, err := persist.New(ctx, persist.Config{IceRoot: root}, persist.WithS3Client(objects), persist.WithLogger(zap.New(core)))
		Expect(err).NotTo(HaveOccurred())
		entries := logs.FilterMessage("Registry initialized").All()
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].ContextMap()).To(HaveKeyWithValue("ice", "ice:"+root))
	})

	It("builds independent registries side by side", func() {
		other, err := os.MkdirTemp("", "ice")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(other)

		a, err := persist.New(ctx, persist.Config{IceRoot: root}, persist.WithS3Client(objects))
		Expect(err).NotTo(HaveOccurred())
		b, err := persist.New(ctx, persist.Config{IceRoot: other}, persist.WithS3Client(objects))
		Expect(err).NotTo(HaveOccurred())

		v := kv.NewValue(kv.MakeString("k"), kv.Ice, []byte("a"))
		Expect(a.Store(ctx, v)).To(Succeed())
		_, err = b.Load(ctx, v)
		Expect(err).To(MatchError(backing.ErrNotFound))
	})
})

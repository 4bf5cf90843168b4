package backing_test

import (
	"fmt"
	"net/url"
	"sync"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/mplewis/persist/backing"
	"github.com/mplewis/persist/codec"
	"github.com/mplewis/persist/kv"
)

func mustParse(raw string) *url.URL {
	u, err := url.Parse(raw)
	Expect(err).NotTo(HaveOccurred())
	return u
}

var _ = Describe("HDFS", func() {
	var d *dialer
	var objects *memS3
	var h *backing.HDFS

	BeforeEach(func() {
		d = newDialer()
		objects = newMemS3()
		s3b, err := backing.NewS3(backing.S3Args{Client: objects})
		Expect(err).NotTo(HaveOccurred())
		h = backing.NewHDFS(backing.HDFSArgs{
			Root:   mustParse("hdfs://nn:8020/ice"),
			Dialer: d.Dial,
			S3N:    s3b,
		})
		d.node("nn:8020").files["/data/a.csv"] = []byte("1,2,3")
		d.node("nn:8020").dirs["/data"] = true
	})

	It("resolves hdfs addresses and loads them", func() {
		k, err := h.ResolveURI(ctx, mustParse("hdfs://nn:8020/data/a.csv"))
		Expect(err).NotTo(HaveOccurred())
		Expect(k.String()).To(Equal("hdfs://nn:8020/data/a.csv"))

		data, err := h.Load(ctx, kv.NewValue(k, kv.HDFS, nil))
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal([]byte("1,2,3")))
	})

	It("fills in the default namenode", func() {
		k, err := h.ResolveURI(ctx, mustParse("hdfs:///data/a.csv"))
		Expect(err).NotTo(HaveOccurred())
		Expect(k.String()).To(Equal("hdfs://nn:8020/data/a.csv"))
	})

	It("fails to resolve missing files and directories", func() {
		_, err := h.ResolveURI(ctx, mustParse("hdfs://nn:8020/data/missing.csv"))
		Expect(err).To(MatchError(backing.ErrNotFound))
		_, err = h.ResolveURI(ctx, mustParse("hdfs://nn:8020/data"))
		Expect(err).To(MatchError(backing.ErrIO))
	})

	It("rejects other schemes", func() {
		_, err := h.ResolveURI(ctx, mustParse("ftp://nn/data/a.csv"))
		Expect(err).To(MatchError(backing.ErrUnsupportedScheme))
	})

	It("reads s3n addresses through the object store", func() {
		objects.objects["bucket/path/b.csv"] = []byte("4,5,6")
		k, err := h.ResolveURI(ctx, mustParse("s3n://bucket/path/b.csv"))
		Expect(err).NotTo(HaveOccurred())
		Expect(k.String()).To(Equal("s3n://bucket/path/b.csv"))
		Expect(objects.heads).To(Equal(1))

		data, err := h.Load(ctx, kv.NewValue(k, kv.HDFS, nil))
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal([]byte("4,5,6")))

		err = h.Store(ctx, kv.NewValue(k, kv.HDFS, []byte("x")))
		Expect(err).To(MatchError(backing.ErrUnsupportedScheme))
		err = h.Delete(ctx, kv.NewValue(k, kv.HDFS, nil))
		Expect(err).To(MatchError(backing.ErrUnsupportedScheme))

		_, err = h.ResolveURI(ctx, mustParse("s3n://bucket/path/missing.csv"))
		Expect(err).To(MatchError(backing.ErrNotFound))
	})

	It("spills other keys under its root", func() {
		k := kv.ChunkKey(kv.VecKey([]byte("frame")), 3)
		v := kv.NewValue(k, kv.HDFS, []byte("chunk"))

		_, err := h.Load(ctx, v)
		Expect(err).To(MatchError(backing.ErrNotFound))

		Expect(h.Store(ctx, v)).To(Succeed())
		Expect(d.node("nn:8020").files).To(HaveKey("/ice/" + codec.IceObjectName(k)))

		data, err := h.Load(ctx, v)
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal([]byte("chunk")))

		Expect(h.Delete(ctx, v)).To(Succeed())
		Expect(h.Delete(ctx, v)).To(Succeed())
		_, err = h.Load(ctx, v)
		Expect(err).To(MatchError(backing.ErrIO))
	})

	It("never writes or deletes resolved files", func() {
		k, err := h.ResolveURI(ctx, mustParse("hdfs://nn:8020/data/a.csv"))
		Expect(err).NotTo(HaveOccurred())

		err = h.Store(ctx, kv.NewValue(k, kv.HDFS, []byte("x")))
		Expect(err).To(MatchError(backing.ErrUnsupportedScheme))
		err = h.Delete(ctx, kv.NewValue(k, kv.HDFS, nil))
		Expect(err).To(MatchError(backing.ErrUnsupportedScheme))
		Expect(d.node("nn:8020").files).To(HaveKeyWithValue("/data/a.csv", []byte("1,2,3")))
	})

	It("handles concurrent spills of distinct keys", func() {
		owner := kv.VecKey([]byte("frame"))
		wg := sync.WaitGroup{}
		for i := 0; i < 50; i++ {
			i := i
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				v := kv.NewValue(kv.ChunkKey(owner, uint32(i)), kv.HDFS, []byte(fmt.Sprint(i)))
				Expect(h.Store(ctx, v)).To(Succeed())
				data, err := h.Load(ctx, v)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(data)).To(Equal(fmt.Sprint(i)))
			}()
		}
		wg.Wait()
		Expect(d.dials).To(Equal(1))
	})

	It("cannot spill without a root", func() {
		bare := backing.NewHDFS(backing.HDFSArgs{Dialer: d.Dial})
		err := bare.Store(ctx, kv.NewValue(kv.MakeString("k"), kv.HDFS, nil))
		Expect(err).To(MatchError(backing.ErrNoRoot))
	})

	It("reports the capacity of the default namenode", func() {
		Expect(h.TotalSpace()).To(Equal(int64(1000)))
		Expect(h.UsableSpace()).To(Equal(int64(400)))

		bare := backing.NewHDFS(backing.HDFSArgs{Dialer: d.Dial})
		Expect(bare.TotalSpace()).To(Equal(backing.UnknownSpace))
		Expect(bare.UsableSpace()).To(Equal(backing.UnknownSpace))
	})

	It("dials each namenode once and closes them all", func() {
		k, err := h.ResolveURI(ctx, mustParse("hdfs://nn:8020/data/a.csv"))
		Expect(err).NotTo(HaveOccurred())
		for i := 0; i < 3; i++ {
			_, err = h.Load(ctx, kv.NewValue(k, kv.HDFS, nil))
			Expect(err).NotTo(HaveOccurred())
		}
		_, err = h.ResolveURI(ctx, mustParse("hdfs://other:8020/x"))
		Expect(err).To(MatchError(backing.ErrNotFound))
		Expect(d.dials).To(Equal(2))

		Expect(h.Close()).To(Succeed())
		Expect(d.node("nn:8020").closed).To(BeTrue())
		Expect(d.node("other:8020").closed).To(BeTrue())
	})
})

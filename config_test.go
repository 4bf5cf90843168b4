package persist_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/mplewis/persist"
)

var _ = Describe("LoadConfig", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "config")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(dir)
	})

	write := func(body string) string {
		p := filepath.Join(dir, "persist.yaml")
		Expect(os.WriteFile(p, []byte(body), 0o644)).To(Succeed())
		return p
	}

	It("reads every section", func() {
		cfg, err := persist.LoadConfig(write(`
ice_root: hdfs://nn:8020/ice
verify_names: true
hdfs:
  namenode: nn:8020
  user: ice
s3:
  bucket: frames
  prefix: spill
  region: us-west-2
  endpoint: http://localhost:9000
  path_style: true
nfs:
  root: /mnt/shared/ice
redis:
  addr: localhost:6379
  lock_expiry: 45s
`))
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.IceRoot).To(Equal("hdfs://nn:8020/ice"))
		Expect(cfg.VerifyNames).To(BeTrue())
		Expect(cfg.HDFS).To(Equal(persist.HDFSConfig{Namenode: "nn:8020", User: "ice"}))
		Expect(cfg.S3).To(Equal(persist.S3Config{
			Bucket:    "frames",
			Prefix:    "spill",
			Region:    "us-west-2",
			Endpoint:  "http://localhost:9000",
			PathStyle: true,
		}))
		Expect(cfg.NFS.Root).To(Equal("/mnt/shared/ice"))
		Expect(cfg.Redis.Addr).To(Equal("localhost:6379"))
		Expect(cfg.Redis.LockExpiry).To(Equal(45 * time.Second))
	})

	It("rejects unknown fields", func() {
		_, err := persist.LoadConfig(write("ice_rot: /tmp/ice\n"))
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("ice_rot"))
	})

	It("fails on a missing file", func() {
		_, err := persist.LoadConfig(filepath.Join(dir, "missing.yaml"))
		Expect(err).To(MatchError(os.ErrNotExist))
	})
})

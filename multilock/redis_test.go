package multilock_test

import (
	"context"
	"os/exec"
	"time"

	goredislib "github.com/go-redis/redis/v8"
	"github.com/mplewis/persist/multilock"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/stvp/tempredis"
)

var _ = Describe("Redis locker", func() {
	var server *tempredis.Server
	var client *goredislib.Client

	BeforeEach(func() {
		if _, err := exec.LookPath("redis-server"); err != nil {
			Skip("redis-server is not installed")
		}
		var err error
		server, err = tempredis.Start(tempredis.Config{})
		Expect(err).NotTo(HaveOccurred())
		client = goredislib.NewClient(&goredislib.Options{Network: "unix", Addr: server.Socket()})
	})

	AfterEach(func() {
		if client != nil {
			_ = client.Close()
		}
		if server != nil {
			_ = server.Term()
		}
	})

	It("excludes a second holder until released", func() {
		l := multilock.NewRedis(multilock.RedisArgs{Client: client, Tries: 2, Expiry: 5 * time.Second})

		unlock, err := l.Lock(context.Background(), "chunk")
		Expect(err).NotTo(HaveOccurred())

		_, err = l.Lock(context.Background(), "chunk")
		Expect(err).To(HaveOccurred())

		unlock()
		unlock, err = l.Lock(context.Background(), "chunk")
		Expect(err).NotTo(HaveOccurred())
		unlock()
		Expect(l.Close()).To(Succeed())
	})
})

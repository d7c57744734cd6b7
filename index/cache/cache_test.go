package cache_test

import (
	"context"
	"strings"
	"sync"
	"time"

	. "github.com/bakerykit/bakery/index/cache"
	"github.com/dogmatiq/dodeca/logging"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("type Cache", func() {
	var (
		ctx    context.Context
		now    time.Time
		logger *logging.BufferedLogger
		cache  *Cache[string]
	)

	BeforeEach(func() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 1*time.Second)
		DeferCleanup(cancel)

		now = time.Now()
		logger = &logging.BufferedLogger{CaptureDebug: true}

		cache = &Cache[string]{
			IdleTimeout: 10 * time.Minute,
			Logger:      logger,
			Now:         func() time.Time { return now },
		}
	})

	Describe("func Acquire()", func() {
		When("the instance has no record in the cache", func() {
			It("returns a record with a zero-value instance", func() {
				rec, err := cache.Acquire(ctx, "<id>")
				Expect(err).ShouldNot(HaveOccurred())
				defer rec.Release()

				Expect(rec.ID()).To(Equal("<id>"))
				Expect(rec.Instance).To(BeEmpty())
			})

			It("adds the record to the cache", func() {
				rec1, err := cache.Acquire(ctx, "<id>")
				Expect(err).ShouldNot(HaveOccurred())
				rec1.KeepAlive()
				rec1.Release()

				Expect(cache.Contains("<id>")).To(BeTrue())
				Expect(cache.Len()).To(Equal(1))

				rec2, err := cache.Acquire(ctx, "<id>")
				Expect(err).ShouldNot(HaveOccurred())
				defer rec2.Release()

				Expect(rec1).To(BeIdenticalTo(rec2))
			})
		})

		When("the instance has a record in the cache", func() {
			var record *Record[string]

			BeforeEach(func() {
				var err error
				record, err = cache.Acquire(ctx, "<id>")
				Expect(err).ShouldNot(HaveOccurred())

				record.Instance = "<instance value>"
			})

			When("the record is not locked", func() {
				BeforeEach(func() {
					record.KeepAlive()
					record.Release()
				})

				It("returns the same instance on subsequent invocations", func() {
					rec, err := cache.Acquire(ctx, "<id>")
					Expect(err).ShouldNot(HaveOccurred())
					defer rec.Release()

					Expect(rec.Instance).To(Equal("<instance value>"))
				})
			})

			When("the record is locked", func() {
				It("blocks until the record is released", func() {
					go func() {
						time.Sleep(10 * time.Millisecond)
						record.KeepAlive()
						record.Release()
					}()

					rec, err := cache.Acquire(ctx, "<id>")
					Expect(err).ShouldNot(HaveOccurred())
					defer rec.Release()

					Expect(rec.Instance).To(Equal("<instance value>"))
				})

				It("creates a new record if the locked record is not kept", func() {
					go func() {
						time.Sleep(10 * time.Millisecond)
						record.Release()
					}()

					rec, err := cache.Acquire(ctx, "<id>")
					Expect(err).ShouldNot(HaveOccurred())
					defer rec.Release()

					Expect(rec.Instance).To(BeEmpty())
				})

				It("returns an error if the deadline is exceeded", func() {
					defer record.Release()

					ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
					defer cancel()

					rec, err := cache.Acquire(ctx, "<id>")
					if rec != nil {
						rec.Release()
					}
					Expect(err).To(Equal(context.DeadlineExceeded))
				})
			})
		})

		It("serializes concurrent acquirers of the same ID", func() {
			var (
				g      sync.WaitGroup
				active int
				peak   int
				m      sync.Mutex
			)

			for i := 0; i < 10; i++ {
				g.Add(1)
				go func() {
					defer GinkgoRecover()
					defer g.Done()

					rec, err := cache.Acquire(ctx, "<id>")
					Expect(err).ShouldNot(HaveOccurred())

					m.Lock()
					active++
					if active > peak {
						peak = active
					}
					m.Unlock()

					time.Sleep(time.Millisecond)

					m.Lock()
					active--
					m.Unlock()

					rec.KeepAlive()
					rec.Release()
				}()
			}

			g.Wait()
			Expect(peak).To(Equal(1))
		})
	})

	Describe("func Release()", func() {
		var record *Record[string]

		BeforeEach(func() {
			var err error
			record, err = cache.Acquire(ctx, "<id>")
			Expect(err).ShouldNot(HaveOccurred())

			record.Instance = "<value>"
		})

		It("removes the record from the cache by default", func() {
			record.Release()

			rec, err := cache.Acquire(ctx, "<id>")
			Expect(err).ShouldNot(HaveOccurred())
			defer rec.Release()

			Expect(rec.Instance).To(BeEmpty())
		})

		It("keeps the record if KeepAlive() is called", func() {
			record.KeepAlive()
			record.Release()

			rec, err := cache.Acquire(ctx, "<id>")
			Expect(err).ShouldNot(HaveOccurred())
			defer rec.Release()

			Expect(rec.Instance).To(Equal("<value>"))
		})
	})

	Describe("func PassivateIdle()", func() {
		var passivated []string

		BeforeEach(func() {
			passivated = nil
			cache.OnPassivate = func(id string) {
				passivated = append(passivated, id)
			}

			rec, err := cache.Acquire(ctx, "<id>")
			Expect(err).ShouldNot(HaveOccurred())
			rec.Instance = "<value>"
			rec.KeepAlive()
			rec.Release()
		})

		It("keeps records that have been used within the idle timeout", func() {
			now = now.Add(9 * time.Minute)
			cache.PassivateIdle()

			Expect(cache.Contains("<id>")).To(BeTrue())
			Expect(passivated).To(BeEmpty())
		})

		It("removes records that have been idle for the idle timeout", func() {
			now = now.Add(10 * time.Minute)
			cache.PassivateIdle()

			Expect(cache.Contains("<id>")).To(BeFalse())
			Expect(passivated).To(ConsistOf("<id>"))
		})

		It("logs a message about the passivated instance", func() {
			now = now.Add(10 * time.Minute)
			cache.PassivateIdle()

			var found bool
			for _, m := range logger.Messages() {
				if strings.Contains(m.Message, "instance passivated") {
					found = true
				}
			}
			Expect(found).To(BeTrue())
		})

		It("does not remove locked records", func() {
			rec, err := cache.Acquire(ctx, "<id>")
			Expect(err).ShouldNot(HaveOccurred())
			defer rec.Release()
			rec.KeepAlive()

			now = now.Add(time.Hour)
			cache.PassivateIdle()

			Expect(cache.Contains("<id>")).To(BeTrue())
		})

		It("does nothing if there is no idle timeout", func() {
			cache.IdleTimeout = 0

			now = now.Add(time.Hour)
			cache.PassivateIdle()

			Expect(cache.Contains("<id>")).To(BeTrue())
		})
	})

	Describe("func Run()", func() {
		It("periodically passivates idle records", func() {
			cache.Now = nil
			cache.IdleTimeout = 10 * time.Millisecond
			cache.Interval = 5 * time.Millisecond

			rec, err := cache.Acquire(ctx, "<id>")
			Expect(err).ShouldNot(HaveOccurred())
			rec.KeepAlive()
			rec.Release()

			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()

			go cache.Run(runCtx)

			Eventually(func() bool {
				return cache.Contains("<id>")
			}).Should(BeFalse())
		})

		It("returns when the context is canceled", func() {
			runCtx, cancel := context.WithCancel(ctx)
			cancel()

			err := cache.Run(runCtx)
			Expect(err).To(Equal(context.Canceled))
		})
	})

	Describe("func Passivate()", func() {
		BeforeEach(func() {
			for _, id := range []string{"<a-1>", "<a-2>", "<b-1>"} {
				rec, err := cache.Acquire(ctx, id)
				Expect(err).ShouldNot(HaveOccurred())
				rec.KeepAlive()
				rec.Release()
			}
		})

		It("removes the records that match the predicate", func() {
			n, err := cache.Passivate(ctx, func(id string) bool {
				return strings.HasPrefix(id, "<a-")
			})
			Expect(err).ShouldNot(HaveOccurred())
			Expect(n).To(Equal(2))

			Expect(cache.Contains("<a-1>")).To(BeFalse())
			Expect(cache.Contains("<a-2>")).To(BeFalse())
			Expect(cache.Contains("<b-1>")).To(BeTrue())
		})

		It("waits for locked records to be released", func() {
			rec, err := cache.Acquire(ctx, "<a-1>")
			Expect(err).ShouldNot(HaveOccurred())

			released := make(chan struct{})
			go func() {
				time.Sleep(20 * time.Millisecond)
				close(released)
				rec.KeepAlive()
				rec.Release()
			}()

			_, err = cache.Passivate(ctx, func(id string) bool {
				return id == "<a-1>"
			})
			Expect(err).ShouldNot(HaveOccurred())
			Expect(released).To(BeClosed())
			Expect(cache.Contains("<a-1>")).To(BeFalse())
		})
	})
})

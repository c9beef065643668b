// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/accounts/internal/account"
)

var _ = Describe("Repository", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		truncateAccounts(ctx)
	})

	Describe("Insert and FindByID", func() {
		It("round-trips every column", func() {
			a := testAccount("ada@holomush.dev")
			id, err := env.Repo.Insert(ctx, a)
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(BeNumerically(">", 0))

			got, err := env.Repo.FindByID(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.FullName).To(Equal("Ada Lovelace"))
			Expect(got.Email).To(Equal("ada@holomush.dev"))
			Expect(got.CreatedAt).To(BeTemporally("~", a.CreatedAt, time.Millisecond))
			Expect(got.IsActive).To(BeTrue())
			Expect(got.IsDeleted).To(BeFalse())
			Expect(got.ModifiedBy).To(BeNil())
		})

		It("rejects a live duplicate email regardless of case", func() {
			_, err := env.Repo.Insert(ctx, testAccount("ada@holomush.dev"))
			Expect(err).NotTo(HaveOccurred())

			_, err = env.Repo.Insert(ctx, testAccount("ADA@holomush.dev"))
			Expect(errors.Is(err, account.ErrEmailTaken)).To(BeTrue())
		})
	})

	Describe("FindByEmail", func() {
		It("matches case-insensitively", func() {
			id, err := env.Repo.Insert(ctx, testAccount("ada@holomush.dev"))
			Expect(err).NotTo(HaveOccurred())

			got, err := env.Repo.FindByEmail(ctx, "Ada@HoloMUSH.dev")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(id))
		})
	})

	Describe("UpdateFields", func() {
		It("writes staged columns and the modification stamp", func() {
			id, err := env.Repo.Insert(ctx, testAccount("ada@holomush.dev"))
			Expect(err).NotTo(HaveOccurred())

			loc := "Paris"
			at := time.Now().UTC().Truncate(time.Microsecond)
			rows, err := env.Repo.UpdateFields(ctx, id, account.Changes{Location: &loc}, 9, at)
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(Equal(int64(1)))

			got, err := env.Repo.FindByID(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Location).To(Equal("Paris"))
			Expect(got.FirstName).To(Equal("Ada"))
			Expect(*got.ModifiedBy).To(Equal(int64(9)))
			Expect(*got.ModifiedAt).To(BeTemporally("~", at, time.Millisecond))
		})

		It("maps an email collision to ErrEmailTaken", func() {
			_, err := env.Repo.Insert(ctx, testAccount("ada@holomush.dev"))
			Expect(err).NotTo(HaveOccurred())
			id, err := env.Repo.Insert(ctx, testAccount("grace@holomush.dev"))
			Expect(err).NotTo(HaveOccurred())

			email := "ada@holomush.dev"
			_, err = env.Repo.UpdateFields(ctx, id, account.Changes{Email: &email}, id, time.Now())
			Expect(errors.Is(err, account.ErrEmailTaken)).To(BeTrue())
		})
	})

	Describe("SoftDelete", func() {
		It("hides the row and frees the email", func() {
			id, err := env.Repo.Insert(ctx, testAccount("ada@holomush.dev"))
			Expect(err).NotTo(HaveOccurred())

			rows, err := env.Repo.SoftDelete(ctx, id, 1, time.Now())
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(Equal(int64(1)))

			rows, err = env.Repo.SoftDelete(ctx, id, 1, time.Now())
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(BeZero())

			_, err = env.Repo.FindByID(ctx, id)
			Expect(errors.Is(err, account.ErrNotFound)).To(BeTrue())

			taken, err := env.Repo.ExistsNonDeleted(ctx, account.FieldEmail, "ada@holomush.dev")
			Expect(err).NotTo(HaveOccurred())
			Expect(taken).To(BeFalse())

			_, err = env.Repo.Insert(ctx, testAccount("ada@holomush.dev"))
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("ListActive", func() {
		It("returns live rows ordered by id", func() {
			first, err := env.Repo.Insert(ctx, testAccount("a@holomush.dev"))
			Expect(err).NotTo(HaveOccurred())
			gone, err := env.Repo.Insert(ctx, testAccount("b@holomush.dev"))
			Expect(err).NotTo(HaveOccurred())
			last, err := env.Repo.Insert(ctx, testAccount("c@holomush.dev"))
			Expect(err).NotTo(HaveOccurred())
			_, err = env.Repo.SoftDelete(ctx, gone, 1, time.Now())
			Expect(err).NotTo(HaveOccurred())

			got, err := env.Repo.ListActive(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(2))
			Expect(got[0].ID).To(Equal(first))
			Expect(got[1].ID).To(Equal(last))
		})
	})

	Describe("Transactor", func() {
		It("rolls back every write when fn fails", func() {
			err := env.Transactor.InTransaction(ctx, func(ctx context.Context) error {
				if _, err := env.Repo.Insert(ctx, testAccount("ada@holomush.dev")); err != nil {
					return err
				}
				return errors.New("force rollback")
			})
			Expect(err).To(MatchError("force rollback"))

			got, err := env.Repo.ListActive(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeEmpty())
		})
	})
})

var _ = Describe("Service on PostgreSQL", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		truncateAccounts(ctx)
	})

	It("admits exactly one of many concurrent signups for the same email", func() {
		svc := newService()
		const racers = 16

		var wg sync.WaitGroup
		results := make([]account.Result, racers)
		for i := range racers {
			wg.Add(1)
			go func(i int) {
				defer GinkgoRecover()
				defer wg.Done()
				results[i] = svc.Signup(ctx, account.SelfRegistration, account.SignupInput{
					FirstName: "Ada",
					LastName:  "Lovelace",
					Email:     "race@holomush.dev",
					Location:  "London",
					Password:  "Tr0ub4dor&3",
				})
			}(i)
		}
		wg.Wait()

		var ok, conflict int
		for _, res := range results {
			switch res.Code {
			case account.CodeSuccess:
				ok++
			case account.CodeConflict:
				conflict++
				Expect(res.Message).To(Equal(account.MsgEmailTaken))
			}
		}
		Expect(ok).To(Equal(1))
		Expect(conflict).To(Equal(racers - 1))

		got, err := env.Repo.ListActive(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(1))
	})

	It("runs the account lifecycle end to end", func() {
		svc := newService()
		res := svc.Signup(ctx, account.SelfRegistration, account.SignupInput{
			FirstName: "Ada", LastName: "Lovelace", Email: "ada@holomush.dev",
			Location: "London", Password: "Tr0ub4dor&3",
		})
		Expect(res.Code).To(Equal(account.CodeSuccess))
		id := res.Data.(account.Created).ID

		first := "Augusta"
		res = svc.Update(ctx, id, id, account.UpdateInput{FirstName: &first})
		Expect(res.Code).To(Equal(account.CodeSuccess))

		res = svc.Get(ctx, id)
		Expect(res.Code).To(Equal(account.CodeSuccess))
		Expect(res.Data.(account.Profile).FullName).To(Equal("Augusta Lovelace"))

		res = svc.Delete(ctx, id, id)
		Expect(res.Code).To(Equal(account.CodeSuccess))
		res = svc.Delete(ctx, id, id)
		Expect(res.Code).To(Equal(account.CodeNotFound))
	})
})

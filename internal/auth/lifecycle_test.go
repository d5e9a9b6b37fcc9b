// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

package auth_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/authio/authio/internal/auth"
)

var _ = Describe("Credential lifecycle", func() {
	var (
		ctx context.Context
		f   *fixture
	)

	BeforeEach(func() {
		ctx = context.Background()
		f = newFixture(GinkgoT())
		f.register(GinkgoT(), "a@x.com", "old-password")
	})

	Describe("password reset", func() {
		It("only honors the newest token and only once", func() {
			Expect(f.resets.RequestReset(ctx, "a@x.com")).To(Succeed())
			t1 := f.outbox.lastResetToken(GinkgoT())

			f.clock.Advance(5 * time.Minute)
			Expect(f.resets.RequestReset(ctx, "a@x.com")).To(Succeed())
			t2 := f.outbox.lastResetToken(GinkgoT())

			Expect(f.resets.RedeemReset(ctx, t1, "p1")).To(MatchError(auth.ErrInvalidOrExpiredToken))
			Expect(f.resets.RedeemReset(ctx, t2, "p2")).To(Succeed())
			Expect(f.resets.RedeemReset(ctx, t2, "p3")).To(MatchError(auth.ErrInvalidOrExpiredToken))

			session, err := f.auth.Authenticate(ctx, "a@x.com", "p2")
			Expect(err).NotTo(HaveOccurred())
			Expect(session.Identity.Email).To(Equal("a@x.com"))

			_, err = f.auth.Authenticate(ctx, "a@x.com", "old-password")
			Expect(err).To(MatchError(auth.ErrInvalidCredentials))
		})

		It("lets the token lapse after an hour", func() {
			Expect(f.resets.RequestReset(ctx, "a@x.com")).To(Succeed())
			token := f.outbox.lastResetToken(GinkgoT())

			f.clock.Advance(time.Hour)
			Expect(f.resets.RedeemReset(ctx, token, "p1")).To(MatchError(auth.ErrInvalidOrExpiredToken))
		})
	})

	Describe("email verification", func() {
		var id = func() auth.PublicIdentity {
			profile, err := f.auth.Profile(ctx, f.identity(GinkgoT(), "a@x.com").ID)
			Expect(err).NotTo(HaveOccurred())
			return *profile
		}

		It("verifies with the mailed code and refuses to reissue", func() {
			identity := id()
			Expect(identity.IsVerified).To(BeFalse())

			Expect(f.verify.IssueOtp(ctx, identity.ID)).To(Succeed())
			code := f.outbox.lastCode(GinkgoT())

			Expect(f.verify.RedeemOtp(ctx, identity.ID, otherCode(code))).To(MatchError(auth.ErrOtpMismatch))
			Expect(f.verify.RedeemOtp(ctx, identity.ID, code)).To(Succeed())
			Expect(id().IsVerified).To(BeTrue())

			sent := f.outbox.count()
			Expect(f.verify.IssueOtp(ctx, identity.ID)).To(MatchError(auth.ErrAlreadyVerified))
			Expect(f.outbox.count()).To(Equal(sent))
		})

		It("expires the code after ten minutes", func() {
			identity := id()
			Expect(f.verify.IssueOtp(ctx, identity.ID)).To(Succeed())
			code := f.outbox.lastCode(GinkgoT())

			f.clock.Advance(10*time.Minute + time.Second)
			Expect(f.verify.RedeemOtp(ctx, identity.ID, code)).To(MatchError(auth.ErrOtpExpiredOrMissing))
			Expect(id().IsVerified).To(BeFalse())
		})
	})

	Describe("sessions", func() {
		It("issues a credential that parses back to the identity", func() {
			session, err := f.auth.Authenticate(ctx, "A@X.com", "old-password")
			Expect(err).NotTo(HaveOccurred())
			Expect(session.ExpiresAt).To(Equal(f.clock.Now().Add(auth.SessionExpiry)))

			claims, err := f.sessions.Parse(session.Token)
			Expect(err).NotTo(HaveOccurred())
			id, err := claims.IdentityID()
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(Equal(session.Identity.ID))
		})
	})
})

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

// Package auth issues and validates identity credentials.
//
// # Credentials
//
// Three credential kinds are handled:
//   - session credentials: stateless HS256 tokens minted by SessionManager
//     and validated by signature and expiry alone
//   - reset credentials: a 64-character hex token, single use, one hour
//   - verification credentials: a 6-digit passcode, single use, ten minutes
//
// Reset and verification secrets are stored as SHA-256 digests on the
// Identity. Issuing a new one overwrites the previous one. Expiry is checked
// when a secret is redeemed; Sweeper only reclaims storage.
//
// # Services
//
//   - Service: Authenticate, Register, Profile
//   - PasswordResetService: RequestReset, RedeemReset
//   - VerificationService: IssueOtp, RedeemOtp
//
// Every check-then-mutate step runs through CredentialStore.Save, which only
// succeeds if the identity's Version is unchanged since it was loaded. On a
// conflict the services reload and re-check, so of two concurrent
// redemptions of the same secret exactly one succeeds.
//
// # Errors
//
// Failures wrap one of the exported Err* kinds; use errors.Is or Kind.
package auth

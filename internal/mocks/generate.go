package mocks

//go:generate mockery --name EventStore --srcpkg github.com/tejasgit/nylo/internal/core/storage --output ./storage --outpkg storagemocks --with-expecter
//go:generate mockery --name IdentityStore --srcpkg github.com/tejasgit/nylo/internal/core/storage --output ./storage --outpkg storagemocks --with-expecter
//go:generate mockery --name CustomerStore --srcpkg github.com/tejasgit/nylo/internal/core/storage --output ./storage --outpkg storagemocks --with-expecter
//go:generate mockery --name VerificationStore --srcpkg github.com/tejasgit/nylo/internal/core/storage --output ./storage --outpkg storagemocks --with-expecter

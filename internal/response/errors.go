package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrSessionActive      ErrCode = "SESSION_ALREADY_ACTIVE"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation ErrCode = "VALIDATION_ERROR"
	ErrInvalidID  ErrCode = "INVALID_ID"

	// ─── Exam-specific ─────────────────────────────────────────────────
	ErrAttemptNotStarted ErrCode = "ATTEMPT_NOT_STARTED"
	ErrAttemptFinished   ErrCode = "ATTEMPT_ALREADY_FINISHED"
	ErrNoQuestions       ErrCode = "NO_QUESTIONS"
	ErrSessionNotRunning ErrCode = "SESSION_NOT_RUNNING"
	ErrSubmissionFailed  ErrCode = "SUBMISSION_FAILED"
	ErrOptionOutOfRange  ErrCode = "OPTION_OUT_OF_RANGE"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Nomor peserta atau kata sandi salah."
	case ErrSessionActive:
		return "Anda sudah login di perangkat lain."
	case ErrSessionInvalidated:
		return "Sesi Anda telah berakhir. Silakan login kembali."
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."

	// ─── Exam-specific ─────────────────────────────────────────────────
	case ErrAttemptNotStarted:
		return "Ujian belum dimulai. Silakan mulai dari halaman tunggu."
	case ErrAttemptFinished:
		return "Ujian Anda sudah selesai."
	case ErrNoQuestions:
		return "Saat ini belum ada soal yang tersedia untuk ujian."
	case ErrSessionNotRunning:
		return "Sesi ujian sedang tidak berjalan."
	case ErrSubmissionFailed:
		return "Pengiriman jawaban gagal. Silakan coba lagi."
	case ErrOptionOutOfRange:
		return "Pilihan jawaban tidak valid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}

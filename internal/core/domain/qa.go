package domain

import "time"

// QAStatus is the review state of a sampled message. The empty string
// means the message was never selected for QA.
type QAStatus string

const (
	QAPending       QAStatus = "PENDING"
	QAInReview      QAStatus = "IN_REVIEW"
	QAApproved      QAStatus = "APPROVED"
	QARejected      QAStatus = "REJECTED"
	QANeedsRevision QAStatus = "NEEDS_REVISION"
)

// TerminalQAStatuses are the states a completed review may land in.
var TerminalQAStatuses = []QAStatus{QAApproved, QARejected, QANeedsRevision}

func (s QAStatus) Terminal() bool {
	switch s {
	case QAApproved, QARejected, QANeedsRevision:
		return true
	default:
		return false
	}
}

func (s QAStatus) Valid() bool {
	switch s {
	case QAPending, QAInReview, QAApproved, QARejected, QANeedsRevision:
		return true
	default:
		return false
	}
}

const (
	QAScoreMin = 0.0
	QAScoreMax = 10.0
)

// QASelection filters the candidate pool for sampling.
type QASelection struct {
	Count     int
	Sender    Sender
	Force     bool
	MinLength int
}

// QAReview is the input of a completed review. All fields are persisted
// together or not at all.
type QAReview struct {
	Score    float64
	Status   QAStatus
	Feedback string
	Reviewer string
	Tags     []string
}

type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// GradeForScore derives the letter grade from a review score. Grades are
// recomputed on read and never stored, so score and grade cannot drift.
func GradeForScore(score float64) Grade {
	switch {
	case score >= 9.0:
		return GradeA
	case score >= 7.5:
		return GradeB
	case score >= 6.0:
		return GradeC
	case score >= 4.0:
		return GradeD
	default:
		return GradeF
	}
}

type QASummary struct {
	TotalSelected     int              `json:"total_selected"`
	CountByStatus     map[QAStatus]int `json:"count_by_status"`
	ReviewedCount     int              `json:"reviewed_count"`
	MeanScore         float64          `json:"mean_score"`
	HasData           bool             `json:"has_data"`
	GradeDistribution map[Grade]int    `json:"grade_distribution"`
	GeneratedAt       time.Time        `json:"generated_at"`
}

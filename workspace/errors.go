package workspace

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeProjectNotFound       = "PROJECT_NOT_FOUND"
	TextCodeTaskNotFound          = "TASK_NOT_FOUND"
	TextCodeAssigneeNotAllocated  = "ASSIGNEE_NOT_ALLOCATED"
	TextCodeInvalidProjectMembers = "INVALID_PROJECT_MEMBERS"
	TextCodeInvalidDateRange      = "INVALID_DATE_RANGE"
)

var (
	ErrProjectNotFound = goerrors.New("project not found", goerrors.CategoryNotFound).
				WithCode(goerrors.CodeNotFound).
				WithTextCode(TextCodeProjectNotFound)

	ErrTaskNotFound = goerrors.New("task not found", goerrors.CategoryNotFound).
			WithCode(goerrors.CodeNotFound).
			WithTextCode(TextCodeTaskNotFound)

	// ErrAssigneeNotAllocated is returned when a task is given to a user
	// that is not a member of the project.
	ErrAssigneeNotAllocated = goerrors.New("assignee must be allocated to the project", goerrors.CategoryAuthz).
				WithCode(goerrors.CodeForbidden).
				WithTextCode(TextCodeAssigneeNotAllocated)

	ErrInvalidProjectMembers = goerrors.New("members must be active users of the same company", goerrors.CategoryValidation).
					WithCode(goerrors.CodeBadRequest).
					WithTextCode(TextCodeInvalidProjectMembers)

	ErrInvalidDateRange = goerrors.New("end date must be after start date", goerrors.CategoryValidation).
				WithCode(goerrors.CodeBadRequest).
				WithTextCode(TextCodeInvalidDateRange)
)

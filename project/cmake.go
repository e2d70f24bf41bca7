package project

import (
	"fmt"
	"strings"
)

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

// RenderCMake renders the CMakeLists.txt of a problem. The cgmres headers are
// expected two directories above the problem, under include/. The Python
// bindings are only added when their directory has been generated.
func RenderCMake(name string, opts Options) []byte {
	var b strings.Builder
	b.WriteString("cmake_minimum_required(VERSION 3.1)\n")
	fmt.Fprintf(&b, "project(%s CXX)\n\n", name)
	b.WriteString("set(CMAKE_CXX_STANDARD 17)\n\n")
	fmt.Fprintf(&b, "option(VECTORIZE \"Enable -march=native\" %s)\n", onOff(opts.Vectorize))
	fmt.Fprintf(&b, "option(BUILD_PYTHON_INTERFACE \"Build Python interface\" %s)\n\n", onOff(opts.Python))
	b.WriteString(`set(CGMRES_INCLUDE_DIR ${PROJECT_SOURCE_DIR}/../../include)

add_executable(
  ${PROJECT_NAME}
  main.cpp
)
target_include_directories(
  ${PROJECT_NAME}
  PRIVATE
  ${CGMRES_INCLUDE_DIR}
  ${CGMRES_INCLUDE_DIR}/thirdparty/eigen
)
if (VECTORIZE)
  target_compile_options(
    ${PROJECT_NAME}
    PRIVATE
    -march=native
  )
endif()

if (BUILD_PYTHON_INTERFACE)
  if (EXISTS ${PROJECT_SOURCE_DIR}/python/${PROJECT_NAME}/CMakeLists.txt)
    add_subdirectory(python/${PROJECT_NAME})
  else()
    message(WARNING "BUILD_PYTHON_INTERFACE is ON but python/${PROJECT_NAME} has no bindings; skipping")
  endif()
endif()
`)
	return []byte(b.String())
}
